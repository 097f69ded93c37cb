package server

import (
	"testing"

	"github.com/giantswarm/redislite/internal/testutil/fakeserver"
)

func TestMain(m *testing.M) {
	fakeserver.Main(m)
}
