package enums

import "fmt"

// ServiceType is the kind of content a customer orders.
type ServiceType string

const (
	ServiceContentWriting ServiceType = "content_writing"
	ServiceGraphics       ServiceType = "graphics"
	ServiceVideo          ServiceType = "video"
	ServiceVoiceover      ServiceType = "voiceover"
)

var validServiceTypes = []ServiceType{
	ServiceContentWriting,
	ServiceGraphics,
	ServiceVideo,
	ServiceVoiceover,
}

// String implements fmt.Stringer.
func (s ServiceType) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ServiceType.
func (s ServiceType) IsValid() bool {
	for _, candidate := range validServiceTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseServiceType converts raw input into a ServiceType.
func ParseServiceType(value string) (ServiceType, error) {
	for _, candidate := range validServiceTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid service type %q", value)
}
