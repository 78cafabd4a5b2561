package acl

import (
	"encoding/json"
	"fmt"
)

// Actions cross the wire as strings ("reject", "accept", ...), but older
// senders use the enum ordinal. Accept both.

// MarshalJSON encodes the action as its string form.
func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes either a string or an integer action value.
func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = ParseAction(s)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		if n < int(ActionReject) || n > int(ActionUnknown) {
			*a = ActionUnknown
			return nil
		}
		*a = Action(n)
		return nil
	}
	return fmt.Errorf("invalid acl action: %s", data)
}
