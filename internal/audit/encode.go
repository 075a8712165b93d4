package audit

import "encoding/json"

func marshalObserved(obs []SourceObservation) (string, error) {
	if len(obs) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(obs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
