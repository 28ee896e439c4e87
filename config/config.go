package config

import (
	"os"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Token     string  `toml:"token" mapstructure:"token"`
	Host      string  `toml:"host" mapstructure:"host"`
	Port      string  `toml:"port" mapstructure:"port"`
	Threshold float64 `toml:"threshold" mapstructure:"threshold"`
	Libonnx   string  `toml:"libonnx" mapstructure:"libonnx"`

	ModelDir string `toml:"model_dir" mapstructure:"model_dir"`

	CaptionEncoderName string `toml:"caption_encoder_name" mapstructure:"caption_encoder_name"`
	CaptionDecoderName string `toml:"caption_decoder_name" mapstructure:"caption_decoder_name"`
	CaptionVocabName   string `toml:"caption_vocab_name" mapstructure:"caption_vocab_name"`
	CaptionEncoderUrl  string `toml:"caption_encoder_url" mapstructure:"caption_encoder_url"`
	CaptionDecoderUrl  string `toml:"caption_decoder_url" mapstructure:"caption_decoder_url"`
	CaptionVocabUrl    string `toml:"caption_vocab_url" mapstructure:"caption_vocab_url"`

	ClipImageName string `toml:"clip_image_name" mapstructure:"clip_image_name"`
	ClipTextName  string `toml:"clip_text_name" mapstructure:"clip_text_name"`
	ClipVocabName string `toml:"clip_vocab_name" mapstructure:"clip_vocab_name"`
	ClipImageUrl  string `toml:"clip_image_url" mapstructure:"clip_image_url"`
	ClipTextUrl   string `toml:"clip_text_url" mapstructure:"clip_text_url"`
	ClipVocabUrl  string `toml:"clip_vocab_url" mapstructure:"clip_vocab_url"`

	DBPath    string `toml:"db_path" mapstructure:"db_path"`
	UploadDir string `toml:"upload_dir" mapstructure:"upload_dir"`

	RedisAddr     string `toml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string `toml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int    `toml:"redis_db" mapstructure:"redis_db"`
	QueueName     string `toml:"queue_name" mapstructure:"queue_name"`
	Concurrency   int    `toml:"concurrency" mapstructure:"concurrency"`
	TaskTimeout   int    `toml:"task_timeout_seconds" mapstructure:"task_timeout_seconds"`
}

var (
	cfg = Config{
		Token:     "",
		Host:      "0.0.0.0",
		Port:      "8000",
		Threshold: 0.1,
		ModelDir:  "models",

		CaptionEncoderName: "caption_encoder.onnx",
		CaptionDecoderName: "caption_decoder.onnx",
		CaptionVocabName:   "caption_vocab.txt",
		CaptionEncoderUrl:  "https://huggingface.co/Salesforce/blip-image-captioning-base/resolve/main/onnx/vision_model.onnx?download=true",
		CaptionDecoderUrl:  "https://huggingface.co/Salesforce/blip-image-captioning-base/resolve/main/onnx/text_decoder_model.onnx?download=true",
		CaptionVocabUrl:    "https://huggingface.co/Salesforce/blip-image-captioning-base/resolve/main/vocab.txt?download=true",

		ClipImageName: "clip_image.onnx",
		ClipTextName:  "clip_text.onnx",
		ClipVocabName: "clip_vocab.txt",
		ClipImageUrl:  "https://huggingface.co/openai/clip-vit-base-patch32/resolve/main/onnx/vision_model.onnx?download=true",
		ClipTextUrl:   "https://huggingface.co/openai/clip-vit-base-patch32/resolve/main/onnx/text_model.onnx?download=true",
		ClipVocabUrl:  "https://huggingface.co/openai/clip-vit-base-patch32/resolve/main/vocab.txt?download=true",

		DBPath:    "data/lenstagger.db",
		UploadDir: "uploads",

		RedisAddr:   "127.0.0.1:6379",
		RedisDB:     0,
		QueueName:   "lenstagger",
		Concurrency: 2,
		TaskTimeout: 300,
	}
	loadOnce sync.Once
)

func C() Config {
	loadOnce.Do(func() {
		if _, err := os.Stat("config.toml"); err == nil {
			data, err := os.ReadFile("config.toml")
			if err != nil {
				panic(err)
			}
			if err := toml.Unmarshal(data, &cfg); err != nil {
				panic(err)
			}
		}
	})
	return cfg
}
