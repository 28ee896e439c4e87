package model

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Captioner produces a natural-language description of an image.
type Captioner interface {
	Caption(ctx context.Context, img image.Image) (string, error)
}

const (
	captionImageSize = 384
	maxCaptionTokens = 40
)

// onnxCaptioner runs a vision encoder once per image and greedily decodes
// tokens from an autoregressive text decoder conditioned on the encoder
// output.
type onnxCaptioner struct {
	mu      sync.Mutex
	encoder *ort.DynamicAdvancedSession
	decoder *ort.DynamicAdvancedSession
	vocab   []string
	bosID   int64
	eosID   int64
}

func newCaptioner(encoderPath, decoderPath, vocabPath string) (*onnxCaptioner, error) {
	vocab, err := ReadLines(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read caption vocab: %w", err)
	}

	c := &onnxCaptioner{vocab: vocab, bosID: 101, eosID: 102}
	for i, tok := range vocab {
		switch tok {
		case "[CLS]":
			c.bosID = int64(i)
		case "[SEP]":
			c.eosID = int64(i)
		}
	}

	c.encoder, err = newDynamicSession(encoderPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create caption encoder session: %w", err)
	}
	c.decoder, err = newDynamicSession(decoderPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create caption decoder session: %w", err)
	}
	return c, nil
}

func newDynamicSession(path string) (*ort.DynamicAdvancedSession, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	inputNames := make([]string, len(inputs))
	for i, in := range inputs {
		inputNames[i] = in.Name
	}
	outputNames := make([]string, len(outputs))
	for i, out := range outputs {
		outputNames[i] = out.Name
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer opts.Destroy()

	return ort.NewDynamicAdvancedSession(path, inputNames, outputNames, opts)
}

func (c *onnxCaptioner) Caption(ctx context.Context, img image.Image) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pixels := Preprocess(img, captionImageSize)
	input, err := ort.NewTensor(ort.NewShape(1, 3, captionImageSize, captionImageSize), pixels)
	if err != nil {
		return "", err
	}
	defer input.Destroy()

	encOut := []ort.Value{nil}
	if err := c.encoder.Run([]ort.Value{input}, encOut); err != nil {
		return "", fmt.Errorf("caption encoder run failed: %w", err)
	}
	hidden := encOut[0]
	defer hidden.Destroy()

	ids := []int64{c.bosID}
	for len(ids) < maxCaptionTokens {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		next, err := c.decodeStep(ids, hidden)
		if err != nil {
			return "", err
		}
		if next == c.eosID {
			break
		}
		ids = append(ids, next)
	}

	return c.detokenize(ids[1:]), nil
}

func (c *onnxCaptioner) decodeStep(ids []int64, hidden ort.Value) (int64, error) {
	idsTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(ids))), append([]int64(nil), ids...))
	if err != nil {
		return 0, err
	}
	defer idsTensor.Destroy()

	out := []ort.Value{nil}
	if err := c.decoder.Run([]ort.Value{idsTensor, hidden}, out); err != nil {
		return 0, fmt.Errorf("caption decoder run failed: %w", err)
	}
	defer out[0].Destroy()

	logits := out[0].(*ort.Tensor[float32]).GetData()
	vocabSize := len(logits) / len(ids)
	last := logits[(len(ids)-1)*vocabSize : len(ids)*vocabSize]
	return int64(argmax(last)), nil
}

// detokenize joins wordpiece tokens, folding "##" continuations into the
// preceding word and dropping special tokens.
func (c *onnxCaptioner) detokenize(ids []int64) string {
	var b strings.Builder
	for _, id := range ids {
		if id < 0 || int(id) >= len(c.vocab) {
			continue
		}
		tok := c.vocab[id]
		if strings.HasPrefix(tok, "[") && strings.HasSuffix(tok, "]") {
			continue
		}
		if rest, ok := strings.CutPrefix(tok, "##"); ok {
			b.WriteString(rest)
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(tok)
	}
	return b.String()
}
