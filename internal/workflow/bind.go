package workflow

import (
	"context"
	"path/filepath"

	"comfyd/pkg/types"
)

// Binder injects caller parameters into a job graph before submission.
type Binder struct {
	fetcher  *Fetcher
	inputDir string
}

// NewBinder returns a binder writing fetched assets under inputDir.
func NewBinder(fetcher *Fetcher, inputDir string) *Binder {
	return &Binder{fetcher: fetcher, inputDir: inputDir}
}

// Bind mutates g in place. Text-encode nodes that carry a text input
// receive the positive prompt (positive_prompt over prompt); load-image
// nodes receive an independently fetched copy of image_url, rewritten
// to a per-node filename. After a successful bind every asset-type
// input refers to a local file the engine can open.
func (b *Binder) Bind(ctx context.Context, g Graph, p types.Params) error {
	text, hasText := promptText(p)
	for id, n := range g {
		if n == nil {
			continue
		}
		switch n.ClassType {
		case nodeTextEncode:
			if !hasText {
				continue
			}
			if n.Inputs == nil {
				continue
			}
			if _, ok := n.Inputs["text"]; !ok {
				continue
			}
			n.Inputs["text"] = text
		case nodeLoadImage:
			if p.ImageURL == nil {
				continue
			}
			if n.Inputs == nil {
				return invalidNodeError{id: id, reason: "load-image node has no inputs mapping"}
			}
			name := "input_image_" + id + ".png"
			if err := b.fetcher.FetchTo(ctx, *p.ImageURL, filepath.Join(b.inputDir, name)); err != nil {
				return err
			}
			n.Inputs["image"] = name
		}
	}
	return nil
}

// promptText picks the bound prompt: positive_prompt wins over prompt;
// presence matters, not emptiness.
func promptText(p types.Params) (string, bool) {
	if p.PositivePrompt != nil {
		return *p.PositivePrompt, true
	}
	if p.Prompt != nil {
		return *p.Prompt, true
	}
	return "", false
}
