package agents

// #region imports
import (
	"encoding/json"
	"errors"
	"strings"
)

// #endregion

// #region extract-json

// ExtractJSON pulls the first JSON document out of a model reply. Fenced
// ```json blocks win; otherwise the outermost object or array braces are
// taken. Models pad replies with prose, so never json.Unmarshal a raw
// reply directly.
func ExtractJSON(reply string) (json.RawMessage, error) {
	if body, ok := fencedBlock(reply); ok {
		if json.Valid([]byte(body)) {
			return json.RawMessage(body), nil
		}
	}

	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(reply, pair[0])
		end := strings.LastIndex(reply, pair[1])
		if start >= 0 && end > start {
			body := reply[start : end+1]
			if json.Valid([]byte(body)) {
				return json.RawMessage(body), nil
			}
		}
	}
	return nil, errors.New("no JSON document in reply")
}

func fencedBlock(reply string) (string, bool) {
	const fence = "```"
	start := strings.Index(reply, fence)
	if start < 0 {
		return "", false
	}
	rest := reply[start+len(fence):]
	if nl := strings.Index(rest, "\n"); nl >= 0 {
		// Skip the language tag line ("json", "JSON", or nothing).
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, fence)
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// #endregion extract-json
