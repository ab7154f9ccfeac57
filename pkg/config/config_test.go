package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeConfig struct {
	Foo string        `yaml:"foo"`
	Bar string        `yaml:"bar"`
	Sub fakeSubConfig `yaml:"sub"`
}

type fakeSubConfig struct {
	Car int `yaml:"car"`
}

func TestLoad(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		f, err := os.CreateTemp("", "chitchat")
		assert.NoError(t, err)

		_, err = f.WriteString(`foo: val1
bar: val2
sub:
  car: 5`)
		assert.NoError(t, err)

		conf := &Config{Path: f.Name()}
		var out fakeConfig
		assert.NoError(t, conf.Load(&out))

		assert.Equal(t, "val1", out.Foo)
		assert.Equal(t, "val2", out.Bar)
		assert.Equal(t, 5, out.Sub.Car)
	})

	t.Run("expand env", func(t *testing.T) {
		f, err := os.CreateTemp("", "chitchat")
		assert.NoError(t, err)

		_ = os.Setenv("CHITCHAT_VAL1", "val1")

		_, err = f.WriteString(`foo: $CHITCHAT_VAL1
bar: ${CHITCHAT_VAL2:val2}
sub:
  car: 5`)
		assert.NoError(t, err)

		conf := &Config{Path: f.Name(), ExpandEnv: true}
		var out fakeConfig
		assert.NoError(t, conf.Load(&out))

		assert.Equal(t, "val1", out.Foo)
		assert.Equal(t, "val2", out.Bar)
	})

	t.Run("no path set", func(t *testing.T) {
		conf := &Config{}
		var out fakeConfig
		assert.NoError(t, conf.Load(&out))
	})

	t.Run("invalid yaml", func(t *testing.T) {
		f, err := os.CreateTemp("", "chitchat")
		assert.NoError(t, err)

		_, err = f.WriteString(`invalid yaml...`)
		assert.NoError(t, err)

		conf := &Config{Path: f.Name()}
		var out fakeConfig
		assert.Error(t, conf.Load(&out))
	})

	t.Run("not found", func(t *testing.T) {
		conf := &Config{Path: "notfound"}
		var out fakeConfig
		assert.Error(t, conf.Load(&out))
	})
}
