package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCommonConfig struct {
	CommonString     string `json:"common_str"`
	CommonInt        int    `json:"common_int"`
	CommonBool       bool   `json:"common_bool"`
	WillBeOverridden string `json:"will_be_overridden"`
}

type testSpecificConfig struct {
	testCommonConfig
	Unique string `json:"unique"`

	OptionalDuration Duration `json:"optional_duration" optional:"true"`
}

func writeFile(t *testing.T, name, contents string) string {
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(contents), 0644))
	return p
}

const commonJSON5 = `{
  // Comments are allowed.
  common_str: "somestring",
  common_int: 1234,
  will_be_overridden: "1111",
}`

func TestLoadFromJSON5_LaterFilesOverride(t *testing.T) {
	common := writeFile(t, "common.json5", commonJSON5)
	specific := writeFile(t, "specific.json5", `{unique: "1234", will_be_overridden: "7890", optional_duration: "3h"}`)

	var tsc testSpecificConfig
	require.NoError(t, LoadFromJSON5(&tsc, common, specific))
	assert.Equal(t, testSpecificConfig{
		testCommonConfig: testCommonConfig{
			CommonString:     "somestring",
			CommonInt:        1234,
			WillBeOverridden: "7890",
		},
		Unique:           "1234",
		OptionalDuration: Duration{Duration: 3 * time.Hour},
	}, tsc)
}

func TestLoadFromJSON5_RequiredFieldMissing_Error(t *testing.T) {
	common := writeFile(t, "common.json5", `{common_str: "x", will_be_overridden: "y"}`)
	specific := writeFile(t, "specific.json5", `{unique: "1234"}`)

	var tsc testSpecificConfig
	err := LoadFromJSON5(&tsc, common, specific)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CommonInt")
}

func TestLoadFromJSON5_NotAStruct_Error(t *testing.T) {
	var s string
	require.Error(t, LoadFromJSON5(&s))
}

func TestDuration_BadString_Error(t *testing.T) {
	var d struct {
		D Duration `json:"d"`
	}
	require.Error(t, DecodeJSON5(strings.NewReader(`{d: "soon"}`), &d))
}
