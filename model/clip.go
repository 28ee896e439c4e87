package model

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Scorer returns one raw similarity logit per prompt for a single image.
type Scorer interface {
	Score(ctx context.Context, img image.Image, prompts []string) ([]float64, error)
}

const (
	clipImageSize     = 224
	clipContextLength = 77
	// exp(4.6052), the learned CLIP temperature baked in at export time.
	clipLogitScale = 100.0
)

// onnxScorer is a CLIP dual encoder: one session embeds the image, the
// other embeds a batch of prompts, and similarity is the scaled cosine
// between the normalized embeddings.
type onnxScorer struct {
	mu     sync.Mutex
	image  *ort.DynamicAdvancedSession
	text   *ort.DynamicAdvancedSession
	tokens map[string]int64
	bosID  int64
	eosID  int64
}

func newScorer(imagePath, textPath, vocabPath string) (*onnxScorer, error) {
	vocab, err := ReadLines(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read clip vocab: %w", err)
	}
	tokens := make(map[string]int64, len(vocab))
	for i, tok := range vocab {
		tokens[tok] = int64(i)
	}

	s := &onnxScorer{tokens: tokens}
	var ok bool
	if s.bosID, ok = tokens["<|startoftext|>"]; !ok {
		return nil, fmt.Errorf("clip vocab missing start token")
	}
	if s.eosID, ok = tokens["<|endoftext|>"]; !ok {
		return nil, fmt.Errorf("clip vocab missing end token")
	}

	s.image, err = newDynamicSession(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create clip image session: %w", err)
	}
	s.text, err = newDynamicSession(textPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create clip text session: %w", err)
	}
	return s, nil
}

func (s *onnxScorer) Score(ctx context.Context, img image.Image, prompts []string) ([]float64, error) {
	if len(prompts) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	imgEmb, err := s.embedImage(img)
	if err != nil {
		return nil, err
	}

	textEmb, dim, err := s.embedPrompts(prompts)
	if err != nil {
		return nil, err
	}
	if dim != len(imgEmb) {
		return nil, fmt.Errorf("embedding dimension mismatch: image %d, text %d", len(imgEmb), dim)
	}

	logits := make([]float64, len(prompts))
	for i := range prompts {
		row := textEmb[i*dim : (i+1)*dim]
		var dot float64
		for j := range row {
			dot += float64(row[j]) * float64(imgEmb[j])
		}
		logits[i] = clipLogitScale * dot
	}
	return logits, nil
}

func (s *onnxScorer) embedImage(img image.Image) ([]float32, error) {
	pixels := Preprocess(img, clipImageSize)
	input, err := ort.NewTensor(ort.NewShape(1, 3, clipImageSize, clipImageSize), pixels)
	if err != nil {
		return nil, err
	}
	defer input.Destroy()

	out := []ort.Value{nil}
	if err := s.image.Run([]ort.Value{input}, out); err != nil {
		return nil, fmt.Errorf("clip image encoder run failed: %w", err)
	}
	defer out[0].Destroy()

	data := out[0].(*ort.Tensor[float32]).GetData()
	emb := append([]float32(nil), data...)
	l2Normalize(emb)
	return emb, nil
}

func (s *onnxScorer) embedPrompts(prompts []string) ([]float32, int, error) {
	ids := make([]int64, 0, len(prompts)*clipContextLength)
	for _, p := range prompts {
		ids = append(ids, s.tokenize(p)...)
	}
	input, err := ort.NewTensor(ort.NewShape(int64(len(prompts)), clipContextLength), ids)
	if err != nil {
		return nil, 0, err
	}
	defer input.Destroy()

	out := []ort.Value{nil}
	if err := s.text.Run([]ort.Value{input}, out); err != nil {
		return nil, 0, fmt.Errorf("clip text encoder run failed: %w", err)
	}
	defer out[0].Destroy()

	data := out[0].(*ort.Tensor[float32]).GetData()
	emb := append([]float32(nil), data...)
	dim := len(emb) / len(prompts)
	for i := range prompts {
		l2Normalize(emb[i*dim : (i+1)*dim])
	}
	return emb, dim, nil
}

// tokenize maps a prompt to a fixed-length id sequence. Whole words are
// looked up with the word-boundary marker first; unknown words degrade to
// per-character tokens.
func (s *onnxScorer) tokenize(text string) []int64 {
	ids := make([]int64, 0, clipContextLength)
	ids = append(ids, s.bosID)

	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:'\"")
		if word == "" {
			continue
		}
		if id, ok := s.tokens[word+"</w>"]; ok {
			ids = append(ids, id)
			continue
		}
		runes := []rune(word)
		for i, r := range runes {
			key := string(r)
			if i == len(runes)-1 {
				key += "</w>"
			}
			if id, ok := s.tokens[key]; ok {
				ids = append(ids, id)
			}
		}
	}

	if len(ids) > clipContextLength-1 {
		ids = ids[:clipContextLength-1]
	}
	ids = append(ids, s.eosID)
	for len(ids) < clipContextLength {
		ids = append(ids, 0)
	}
	return ids
}
