package inverter

import (
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/solarledger/solarledger/pkg/common"
)

// Configured returns a Cloud client set up from flags. The session store is
// optional and may be set later with SetSessionStore.
func Configured() *Cloud {
	c := &Cloud{}

	baseURL := lflag.String("inverter-base-url", "https://gateway.isolarcloud.com.hk", "Base URL of the inverter cloud API")
	appKey := lflag.String("inverter-app-key", "", "App key sent in every upstream request body")
	accessKey := lflag.RequiredString("inverter-access-key", "Access key sent in the x-access-key header")
	account := lflag.String("inverter-account", "", "Upstream account used for the static login")
	password := lflag.String("inverter-password", "", "Upstream password used for the static login")
	timeout := lflag.Duration("inverter-timeout", 30*time.Second, "Timeout for upstream requests")

	lflag.Do(func() {
		c.client = common.HTTPClient(*timeout)
		c.baseURL = *baseURL
		c.appKey = *appKey
		c.accessKey = *accessKey
		c.account = *account
		c.password = *password
	})

	return c
}
