package ApiVersions

type Response struct {
	ErrorCode int16
	ApiKeys   []ApiKeyVersion // slice index same as ApiKey
}

type ApiKeyVersion struct {
	ApiKey     int16
	MinVersion int16
	MaxVersion int16
}

// Supports says whether the broker accepts the given version of the api
// call.
func (r *Response) Supports(key, version int16) bool {
	for _, k := range r.ApiKeys {
		if k.ApiKey == key {
			return version >= k.MinVersion && version <= k.MaxVersion
		}
	}
	return false
}
