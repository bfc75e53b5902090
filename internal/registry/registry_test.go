package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistries(t *testing.T) {
	regs, err := Default()
	require.NoError(t, err)

	assert.Greater(t, regs.Institutions.Len(), 0)

	inst, ok := regs.Institutions.Lookup("  tel aviv UNIVERSITY ")
	require.True(t, ok)
	assert.Equal(t, "Tel Aviv University", inst.Name)
	assert.Equal(t, 9.5, inst.Score)

	for _, label := range []string{"Bank", "Health", "Insurance", "IT", "Security", "Others"} {
		_, ok := regs.Industries.Sector(label)
		assert.Truef(t, ok, "expected sector %s", label)
	}
}

func TestInstitutionLookupIsExact(t *testing.T) {
	reg, err := NewInstitutionRegistry([]Institution{
		{Name: "Technion", Score: 10},
		{Name: "technion ", Score: 3},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, reg.Len(), "duplicate names keep the first entry")

	entry, ok := reg.Lookup("TECHNION")
	require.True(t, ok)
	assert.Equal(t, 10.0, entry.Score)

	_, ok = reg.Lookup("Technion Haifa")
	assert.False(t, ok)

	_, ok = reg.Lookup("   ")
	assert.False(t, ok)
}

func TestInstitutionRegistryRejectsInvalidScores(t *testing.T) {
	_, err := NewInstitutionRegistry([]Institution{{Name: "Somewhere", Score: 11}})
	assert.Error(t, err)

	_, err = NewInstitutionRegistry([]Institution{{Score: 1}})
	assert.Error(t, err)
}

func TestIndustryMatch(t *testing.T) {
	reg, err := NewIndustryRegistry(map[string][]Industry{
		"Bank": {
			{NameEN: "Bank Hapoalim", NameHE: "בנק הפועלים", Score: 10},
			{NameEN: "Bank Leumi", NameHE: "בנק לאומי", Score: 9},
		},
	})
	require.NoError(t, err)

	entry, ok := reg.Match("bank", " BANK LEUMI")
	require.True(t, ok)
	assert.Equal(t, 9.0, entry.Score)

	entry, ok = reg.Match("BANK", "בנק הפועלים ")
	require.True(t, ok)
	assert.Equal(t, "Bank Hapoalim", entry.NameEN)

	_, ok = reg.Match("Health", "Bank Leumi")
	assert.False(t, ok)

	_, ok = reg.Match("Bank", "Leumi")
	assert.False(t, ok)

	assert.Equal(t, []string{"Bank"}, reg.Sectors())
}

func TestIndustryRegistryRejectsDuplicateSectors(t *testing.T) {
	_, err := NewIndustryRegistry(map[string][]Industry{
		"IT": {},
		"it": {},
	})
	assert.Error(t, err)
}

func TestLoadFromFiles(t *testing.T) {
	dir := t.TempDir()
	instPath := filepath.Join(dir, "institutions.yaml")
	indPath := filepath.Join(dir, "industries.yaml")

	require.NoError(t, os.WriteFile(instPath, []byte("- name: Example College\n  score: 4\n"), 0o600))
	require.NoError(t, os.WriteFile(indPath, []byte("Retail:\n  - name_en: Shufersal\n    name_he: שופרסל\n    score: 6\n"), 0o600))

	regs, err := Load(instPath, indPath)
	require.NoError(t, err)

	assert.Equal(t, 1, regs.Institutions.Len())
	_, ok := regs.Industries.Sector("retail")
	assert.True(t, ok)

	_, err = Load(filepath.Join(dir, "missing.yaml"), "")
	assert.Error(t, err)
}
