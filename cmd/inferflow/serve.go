package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nitin-chandra-28/InferFlow/completion"
	chatpost "github.com/nitin-chandra-28/InferFlow/handlers/chat/post"
	chatstream "github.com/nitin-chandra-28/InferFlow/handlers/chat/stream"
	"github.com/rs/cors"
	"github.com/tmc/langchaingo/llms/openai"
)

type ServeCommand struct {
	Host            string           `help:"The host to listen on." env:"HOST" default:""`
	Port            int              `help:"The port to listen on." env:"PORT" default:"3001"`
	ProviderURL     string           `help:"The base URL of the OpenAI compatible completion API." env:"PROVIDER_URL" default:"https://router.huggingface.co/v1"`
	ProviderToken   completion.Token `help:"The bearer token for the completion API." env:"HUGGING_FACE_API_TOKEN" default:""`
	ProviderTimeout time.Duration    `help:"The maximum time for a completion API call, including reading the whole reply. A streamed reply still running at the deadline fails. 0 to wait forever." env:"PROVIDER_TIMEOUT" default:"60s"`
	Model           string           `help:"The model to chat with." env:"MODEL" default:"meta-llama/Llama-3.1-8B-Instruct"`
	MaxTokens       int              `help:"The maximum number of tokens in a reply." env:"MAX_TOKENS" default:"512"`
	Stream          bool             `help:"Stream replies as plain text instead of returning a JSON document." env:"STREAM" default:"false"`
	TLSCertFile     string           `help:"The TLS certificate file." env:"TLS_CERT_FILE" default:""`
	TLSKeyFile      string           `help:"The TLS key file." env:"TLS_KEY_FILE" default:""`
	LogLevel        string           `help:"The log level to use." env:"LOG_LEVEL" default:"info"`
}

func (c ServeCommand) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c ServeCommand) handler(log *slog.Logger) (http.Handler, error) {
	if c.MaxTokens <= 0 {
		return nil, fmt.Errorf("max tokens must be positive, got %d", c.MaxTokens)
	}
	if c.ProviderToken == "" {
		log.Warn("no provider token set, completion requests will be rejected by the provider")
	}

	mux := http.NewServeMux()
	if c.Stream {
		log.Info("creating streaming LLM client", slog.String("url", c.ProviderURL), slog.String("model", c.Model))
		llm, err := openai.New(
			openai.WithBaseURL(c.ProviderURL),
			openai.WithToken(string(c.ProviderToken)),
			openai.WithModel(c.Model),
			openai.WithHTTPClient(&http.Client{Timeout: c.ProviderTimeout}),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create LLM: %w", err)
		}
		mux.Handle("POST /chat", chatstream.New(log, llm, c.MaxTokens))
	} else {
		log.Info("creating completion client", slog.String("url", c.ProviderURL), slog.String("model", c.Model))
		cc := completion.New(completion.Config{
			BaseURL: c.ProviderURL,
			Token:   c.ProviderToken,
			Timeout: c.ProviderTimeout,
		})
		mux.Handle("POST /chat", chatpost.New(log, cc, c.Model, c.MaxTokens))
	}

	return cors.AllowAll().Handler(mux), nil
}

func (c ServeCommand) Run(ctx context.Context) (err error) {
	log := getLogger(c.LogLevel)

	h, err := c.handler(log)
	if err != nil {
		return err
	}

	log.Info("Listening", slog.String("addr", c.ListenAddr()))
	s := &http.Server{
		Addr:    c.ListenAddr(),
		Handler: h,
	}
	if c.TLSCertFile != "" && c.TLSKeyFile != "" {
		log.Info("Enabling TLS mode")
		var cert tls.Certificate
		cert, err = tls.LoadX509KeyPair(c.TLSCertFile, c.TLSKeyFile)
		if err != nil {
			return fmt.Errorf("failed to load cert: %w", err)
		}
		s.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
		return s.ListenAndServeTLS(c.TLSCertFile, c.TLSKeyFile)
	}
	return s.ListenAndServe()
}
