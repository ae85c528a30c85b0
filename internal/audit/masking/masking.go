package masking

import "strings"

const maskToken = "****"

// sensitiveKeys are metadata keys whose values are payment references.
var sensitiveKeys = map[string]struct{}{
	"transaction_id": {},
}

// MaskReference hides all but the last four characters of a payment reference.
func MaskReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskMetadata returns a copy of input with sensitive keys masked at any depth.
func MaskMetadata(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}

	out := make(map[string]any, len(input))
	for key, value := range input {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, sensitive := sensitiveKeys[key]; sensitive {
			if s, ok := value.(string); ok {
				out[key] = MaskReference(s)
				continue
			}
			if s, ok := value.(*string); ok && s != nil {
				out[key] = MaskReference(*s)
				continue
			}
		}
		out[key] = maskNested(value)
	}
	return out
}

func maskNested(value any) any {
	switch cast := value.(type) {
	case map[string]any:
		return MaskMetadata(cast)
	case []any:
		items := make([]any, 0, len(cast))
		for _, item := range cast {
			items = append(items, maskNested(item))
		}
		return items
	default:
		return value
	}
}
