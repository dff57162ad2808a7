package cfg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type defEngineOptions struct {
	PageSize int           `cfg:"pageSize" def:"10"`
	Delay    time.Duration `cfg:"delay" def:"300ms"`
	Formats  []string      `cfg:"formats" def:"json, msgpack"`
	Label    *string       `cfg:"label" def:"tablex"`
	Ratio    float64       `cfg:"ratio" def:"0.5"`
	Enabled  bool          `cfg:"enabled" def:"true"`
	Limit    uint32        `cfg:"limit" def:"100"`
}

type defOptions struct {
	Engine defEngineOptions  `cfg:"engine"`
	Cache  *defEngineOptions `cfg:"cache"`
	Name   string            `cfg:"name"`
}

func TestSetDefaults(t *testing.T) {
	options := &defOptions{}
	require.NoError(t, SetDefaults(options))

	assert.Equal(t, 10, options.Engine.PageSize)
	assert.Equal(t, 300*time.Millisecond, options.Engine.Delay)
	assert.Equal(t, []string{"json", "msgpack"}, options.Engine.Formats)
	require.NotNil(t, options.Engine.Label)
	assert.Equal(t, "tablex", *options.Engine.Label)
	assert.Equal(t, 0.5, options.Engine.Ratio)
	assert.True(t, options.Engine.Enabled)
	assert.Equal(t, uint32(100), options.Engine.Limit)

	// nil 指针的配置块保持为 nil
	assert.Nil(t, options.Cache)
	assert.Equal(t, "", options.Name)
}

func TestSetDefaults_KeepExistingValues(t *testing.T) {
	options := &defOptions{Engine: defEngineOptions{PageSize: 25}, Cache: &defEngineOptions{}}
	require.NoError(t, SetDefaults(options))

	assert.Equal(t, 25, options.Engine.PageSize)
	require.NotNil(t, options.Cache)
	assert.Equal(t, 10, options.Cache.PageSize)
}

func TestSetDefaults_InvalidInput(t *testing.T) {
	assert.Error(t, SetDefaults(nil))
	assert.Error(t, SetDefaults(defOptions{}))

	var options *defOptions
	assert.Error(t, SetDefaults(options))

	type badOptions struct {
		Size int `def:"ten"`
	}
	assert.Error(t, SetDefaults(&badOptions{}))
}
