package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func restoreVersion(t *testing.T) {
	v, r, d := Version, Revision, BuildDate
	t.Cleanup(func() {
		Version, Revision, BuildDate = v, r, d
	})
}

func TestVersionStrings(t *testing.T) {
	assert.Contains(t, Short(), Version)
	assert.Contains(t, Short(), Revision)
	assert.Contains(t, Detailed(), "/")
	assert.True(t, strings.HasPrefix(UserAgent(), AppName+"/"))
}

func TestFillFromBuildInfo(t *testing.T) {
	restoreVersion(t)
	Version, Revision, BuildDate = devVersion, "HEAD", ""

	fillFromBuildInfo("v1.4.0", map[string]string{
		"vcs.revision": "0123456789abcdef",
		"vcs.modified": "true",
		"vcs.time":     "2025-06-01T10:00:00Z",
	})

	assert.Equal(t, "1.4.0", Version)
	assert.Equal(t, "0123456789ab-dirty", Revision)
	assert.Equal(t, "2025-06-01T10:00:00Z", BuildDate)
}

func TestFillFromBuildInfo_KeepsLdflags(t *testing.T) {
	restoreVersion(t)
	Version, Revision, BuildDate = "2.0.0", "cafe", "ldflags"

	fillFromBuildInfo("(devel)", map[string]string{"vcs.revision": "beef", "vcs.time": "x"})

	assert.Equal(t, "2.0.0", Version)
	assert.Equal(t, "cafe", Revision)
	assert.Equal(t, "ldflags", BuildDate)
}
