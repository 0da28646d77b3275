package gateway

import (
	"encoding/json"

	"github.com/aras-services/aras-gateway/internal/domain"
)

func buildEnvelope(typeTag, resource, action string, id *int64, data string) ([]byte, error) {
	return json.Marshal(domain.BusEnvelope{
		Type:     typeTag,
		Resource: resource,
		Action:   action,
		ID:       id,
		Data:     data,
	})
}
