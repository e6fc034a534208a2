package orders

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/aidigitalagency/storefront-backend/pkg/enums"
	pkgerrors "github.com/aidigitalagency/storefront-backend/pkg/errors"
)

const (
	minRevisions = 1
	maxRevisions = 4
)

var (
	basePrices = map[enums.ServiceType]decimal.Decimal{
		enums.ServiceContentWriting: decimal.NewFromInt(25),
		enums.ServiceGraphics:       decimal.NewFromInt(15),
		enums.ServiceVideo:          decimal.NewFromInt(50),
		enums.ServiceVoiceover:      decimal.NewFromInt(20),
	}

	// requiredParams lists the brief field each service cannot be produced without.
	requiredParams = map[enums.ServiceType]string{
		enums.ServiceContentWriting: "topic",
		enums.ServiceGraphics:       "description",
		enums.ServiceVideo:          "script",
		enums.ServiceVoiceover:      "text",
	}

	premiumMultiplier  = decimal.RequireFromString("1.5")
	rushMultiplier     = decimal.RequireFromString("1.3")
	extraRevisionPrice = decimal.NewFromInt(5)
)

// PricingOptions are the quote modifiers read from the order params.
type PricingOptions struct {
	Premium   bool `json:"premium"`
	Rush      bool `json:"rush"`
	Revisions int  `json:"revisions"`
}

// Quote prices a service. One revision is included; each additional one adds
// a flat fee after the multipliers are applied.
func Quote(service enums.ServiceType, opts PricingOptions) (decimal.Decimal, error) {
	price, ok := basePrices[service]
	if !ok {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported service %q", service))
	}
	revisions := opts.Revisions
	if revisions == 0 {
		revisions = minRevisions
	}
	if revisions < minRevisions || revisions > maxRevisions {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("revisions must be between %d and %d", minRevisions, maxRevisions))
	}

	if opts.Premium {
		price = price.Mul(premiumMultiplier)
	}
	if opts.Rush {
		price = price.Mul(rushMultiplier)
	}
	if revisions > 1 {
		price = price.Add(extraRevisionPrice.Mul(decimal.NewFromInt(int64(revisions - 1))))
	}
	return price.Round(2), nil
}

// parseParams validates the opaque service params and extracts the pricing
// options. Unknown keys are kept as part of the brief.
func parseParams(service enums.ServiceType, raw json.RawMessage) (PricingOptions, error) {
	var opts PricingOptions
	if len(raw) == 0 {
		return opts, pkgerrors.New(pkgerrors.CodeValidation, "params are required")
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return opts, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "params must be a JSON object")
	}
	if err := json.Unmarshal(raw, &opts); err != nil {
		return opts, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid pricing options")
	}

	key, ok := requiredParams[service]
	if !ok {
		return opts, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported service %q", service))
	}
	value, _ := fields[key].(string)
	if strings.TrimSpace(value) == "" {
		return opts, pkgerrors.New(pkgerrors.CodeValidation, "missing service parameter").
			WithDetails(map[string]string{"field": key})
	}
	return opts, nil
}
