package voice

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadProfiles_Default(t *testing.T) {
	table, err := LoadProfiles("")
	require.NoError(t, err)
	require.Len(t, table.Profiles, 10)

	p, ok := table.Get("young_male_casual")
	require.True(t, ok)
	assert.Equal(t, "Young Male Casual", p.Name)

	v, ok := p.Mapping("elevenlabs")
	require.True(t, ok)
	assert.Equal(t, "yoZ06aMxZJJ28mfd3POQ", v.VoiceID)

	v, ok = p.Mapping("gemini")
	require.True(t, ok)
	assert.Equal(t, "Puck", v.VoiceName)

	_, ok = p.Mapping("voicevox")
	assert.False(t, ok)
}

func TestLoadProfiles_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"profiles": [
			{"id": "a", "name": "A", "providerMappings": {"openai": {"voice": "nova"}}},
			{"id": "b", "name": "B", "providerMappings": {"gemini": {"voiceName": "Charon"}}}
		],
		"templateMappings": {"pirates:Captain": "b"}
	}`), 0644))

	table, err := LoadProfiles(path)
	require.NoError(t, err)

	p, ok := table.ForTemplate("pirates", "Captain")
	require.True(t, ok)
	assert.Equal(t, "b", p.ID)

	_, ok = table.ForTemplate("pirates", "Parrot")
	assert.False(t, ok)

	first, ok := table.FirstWith("gemini")
	require.True(t, ok)
	assert.Equal(t, "b", first.ID)

	_, ok = table.FirstWith("polly")
	assert.False(t, ok)
}

func TestParseProfiles_Errors(t *testing.T) {
	_, err := ParseProfiles([]byte(`{`))
	assert.Error(t, err)

	_, err = ParseProfiles([]byte(`{"profiles": [{"name": "no id"}]}`))
	assert.Error(t, err)

	_, err = LoadProfiles(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestProfile_Summary(t *testing.T) {
	p := Profile{Characteristics: map[string]string{"gender": "female", "age": "adult"}}
	assert.Equal(t, "Age: Adult, Gender: Female", p.Summary())
}

func TestProfileTable_Nil(t *testing.T) {
	var table *ProfileTable
	_, ok := table.Get("x")
	assert.False(t, ok)
	_, ok = table.FirstWith("gemini")
	assert.False(t, ok)
}
