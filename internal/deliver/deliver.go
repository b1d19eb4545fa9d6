// Package deliver ships produced media to its caller-visible form:
// remote URL when upload works, inline base64 for small files when it
// does not, an explicit error record otherwise.
package deliver

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"comfyd/pkg/types"
)

// inlineLimitBytes caps the base64 fallback. Larger files get an error
// record instead of bloating the response.
const inlineLimitBytes = 10 * 1024 * 1024

// Pipeline turns local file paths into delivery records.
type Pipeline struct {
	uploader Uploader
	prefix   string
	log      zerolog.Logger
	now      func() time.Time
}

func NewPipeline(uploader Uploader, keyPrefix string, log zerolog.Logger) *Pipeline {
	if keyPrefix == "" {
		keyPrefix = "generated"
	}
	return &Pipeline{
		uploader: uploader,
		prefix:   keyPrefix,
		log:      log.With().Str("component", "deliver").Logger(),
		now:      time.Now,
	}
}

// Deliver handles each path in order: upload first, inline fallback
// under the size cap when the upload fails, error record otherwise. A
// single timestamp namespaces the whole batch, so keys are
// {prefix}/{label}/{ts}_{i}{ext} with the original extension preserved.
// Upload failures never abort the batch.
func (p *Pipeline) Deliver(ctx context.Context, paths []string, label string) []types.DeliveryRecord {
	records := make([]types.DeliveryRecord, 0, len(paths))
	ts := p.now().Unix()
	for i, path := range paths {
		ext := filepath.Ext(path)
		kind := classify(strings.ToLower(ext))
		key := fmt.Sprintf("%s/%s/%d_%d%s", p.prefix, label, ts, i, ext)

		url, err := p.uploader.Upload(ctx, path, key)
		if err == nil {
			deliveryTotal.WithLabelValues("remote").Inc()
			records = append(records, types.DeliveryRecord{Type: kind, URL: url, Filename: filepath.Base(path)})
			continue
		}
		p.log.Warn().Err(err).Str("path", path).Str("key", key).Msg("upload failed, falling back")
		rec := inlineOrError(path, ext, kind)
		if rec.Type == "error" {
			deliveryTotal.WithLabelValues("error").Inc()
		} else {
			deliveryTotal.WithLabelValues("inline").Inc()
		}
		records = append(records, rec)
	}
	return records
}

// inlineOrError encodes small files to base64 and rejects the rest with
// an error record naming the byte size.
func inlineOrError(path, ext, kind string) types.DeliveryRecord {
	info, err := os.Stat(path)
	if err != nil {
		return types.DeliveryRecord{Type: "error", Error: fmt.Sprintf("stat %s: %v", filepath.Base(path), err)}
	}
	if info.Size() >= inlineLimitBytes {
		return types.DeliveryRecord{Type: "error", Error: fmt.Sprintf("file too large for base64 encoding: %d bytes", info.Size())}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return types.DeliveryRecord{Type: "error", Error: fmt.Sprintf("read %s: %v", filepath.Base(path), err)}
	}
	return types.DeliveryRecord{
		Type:   kind,
		Data:   base64.StdEncoding.EncodeToString(data),
		Format: strings.TrimPrefix(strings.ToLower(ext), "."),
	}
}

// classify maps a lowercased extension to the record type.
func classify(ext string) string {
	switch ext {
	case ".mp4", ".webm", ".avi", ".mov":
		return "video"
	case ".png", ".jpg", ".jpeg":
		return "image"
	default:
		return "unknown"
	}
}
