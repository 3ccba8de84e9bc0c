package branding

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Bot  Bot     `yaml:"bot"`
	User Persona `yaml:"user"`
}

type Bot struct {
	Persona `yaml:",inline"`
	// Brand is shown in the header.
	Brand string `yaml:"brand"`
}

type Persona struct {
	Name string `yaml:"name"`
	// Avatar is an emoji or a short label.
	Avatar string `yaml:"avatar"`
}

func Default() Config {
	return Config{
		Bot: Bot{
			Persona: Persona{Name: "Llama", Avatar: "🧠"},
			Brand:   "InferFlow",
		},
		User: Persona{Name: "You", Avatar: "🙂"},
	}
}

// Load reads a YAML file over the defaults. An empty name returns the defaults.
func Load(name string) (c Config, err error) {
	c = Default()
	if name == "" {
		return c, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return c, fmt.Errorf("failed to open branding file: %w", err)
	}
	defer f.Close()
	err = yaml.NewDecoder(f).Decode(&c)
	if errors.Is(err, io.EOF) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("failed to decode branding file %s: %w", name, err)
	}
	return c, nil
}

func (c Config) Welcome() string {
	return fmt.Sprintf("Hi, I'm %s. Ask me anything!", c.Bot.Name)
}
