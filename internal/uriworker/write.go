package uriworker

import (
	"context"
	"encoding/json"
	"fmt"

	"agentindex/internal/compress"
	"agentindex/internal/repository"
)

// customValueSizeGate is the byte threshold above which a custom-key
// value is compressed instead of stored raw (spec.md §4.6): "custom
// keys are compressed if payload exceeds 256 bytes and compression
// actually shrinks the payload".
const customValueSizeGate = 256

// standardKeys are stored raw unconditionally; every field not in this
// set is treated as a custom key subject to the size-gated compression
// rule above.
var standardKeys = map[string]bool{
	"name": true, "description": true, "image": true, "external_url": true,
}

// encodeField frames one field's value per its key class: standard
// keys are always raw, custom keys are compressed only when they clear
// the size gate and compression shrinks them.
func encodeField(key string, value []byte) []byte {
	if standardKeys[key] {
		return compress.Raw(value)
	}
	if len(value) <= customValueSizeGate {
		return compress.Raw(value)
	}
	compressed := compress.CompressOrRaw(value)
	if len(compressed) >= len(value)+1 {
		// CompressOrRaw already falls back to raw when it doesn't shrink,
		// but the size gate itself only permits compression above 256
		// bytes; re-raw here covers the (rare) case where the zstd frame
		// still isn't smaller than a plain raw encoding.
		return compress.Raw(value)
	}
	return compressed
}

// statusKey is the key of the single `_status` row the worker always writes,
// success or failure (spec.md open question: resolved to `_uri:_status`,
// not `_uri:status`).
const statusKey = "_status"

// documentFields turns a successfully parsed document into the set of
// `_uri:*` rows to persist.
func documentFields(doc agentDocument) []repository.URIMetadataField {
	fields := []repository.URIMetadataField{
		{Key: "name", Value: encodeField("name", []byte(doc.Name))},
		{Key: "description", Value: encodeField("description", []byte(doc.Description))},
		{Key: "image", Value: encodeField("image", []byte(doc.Image))},
		{Key: "external_url", Value: encodeField("external_url", []byte(doc.ExternalURL))},
	}
	if raw, err := json.Marshal(doc.Services); err == nil && len(doc.Services) > 0 {
		fields = append(fields, repository.URIMetadataField{Key: "services", Value: encodeField("services", raw)})
	}
	if raw, err := json.Marshal(doc.Registrations); err == nil && len(doc.Registrations) > 0 {
		fields = append(fields, repository.URIMetadataField{Key: "registrations", Value: encodeField("registrations", raw)})
	}
	if raw, err := json.Marshal(doc.TrustModels); err == nil && len(doc.TrustModels) > 0 {
		fields = append(fields, repository.URIMetadataField{Key: "trustModels", Value: encodeField("trustModels", raw)})
	}
	return fields
}

// writeStatus builds the status row (it does not write it), used on
// every failure path and dropped into the same transaction as a success
// write when both apply.
func writeStatus(status string) repository.URIMetadataField {
	return repository.URIMetadataField{Key: statusKey, Value: compress.Raw([]byte(status))}
}

// persist re-checks freshness (read-your-writes) then replaces every
// `_uri:*` row for the asset in one transaction.
func (w *Worker) persist(ctx context.Context, task Task, fields []repository.URIMetadataField) error {
	agent, err := w.repo.GetAgent(ctx, task.Asset)
	if err != nil {
		return fmt.Errorf("uriworker: freshness check: %w", err)
	}
	if agent == nil {
		return nil // asset vanished since enqueue; drop silently
	}
	if agent.URI != task.URI {
		return nil // URI changed since enqueue; a newer task will supersede this one
	}
	return w.repo.ReplaceURIMetadata(ctx, task.Asset, fields)
}
