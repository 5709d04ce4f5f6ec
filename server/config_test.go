package server

import (
	"testing"
	"time"

	"github.com/faouziMohamed/mail-aliases/internal/testutil"
)

func TestApplyDefaults(t *testing.T) {
	config := applyDefaults(&Config{})

	testutil.AssertEqual(t, config.AuthorizationCodeTTL, 10*time.Minute)
	testutil.AssertEqual(t, config.AccessTokenTTL, time.Hour)
	testutil.AssertEqual(t, config.IDTokenTTL, time.Hour)
	testutil.AssertEqual(t, len(config.BaselineScopes), 3)
	if config.Logger == nil {
		t.Error("logger default not applied")
	}
	if config.Now == nil {
		t.Error("time source default not applied")
	}
}

func TestConfigValidate(t *testing.T) {
	valid := applyDefaults(&Config{})
	testutil.AssertNoError(t, valid.Validate())

	missingIssuer := applyDefaults(&Config{SigningKey: testSigningKey(t)})
	testutil.AssertError(t, missingIssuer.Validate())

	negativeTTL := applyDefaults(&Config{AccessTokenTTL: -time.Minute})
	testutil.AssertError(t, negativeTTL.Validate())
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(nil, &Config{})
	testutil.AssertError(t, err)
}
