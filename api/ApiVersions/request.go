package ApiVersions

import (
	"github.com/mkocikowski/kafkaclient/api"
)

func NewRequest() *api.Request {
	return &api.Request{
		ApiKey:     api.ApiVersions,
		ApiVersion: 0,
	}
}
