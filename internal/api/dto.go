package api

// FlagRequest is the body of flag create/update calls.
type FlagRequest struct {
	Key         string `json:"key"`
	Enabled     bool   `json:"enabled"`
	Value       string `json:"value"`
	Description string `json:"description"`
	UpdatedAtMs int64  `json:"updatedAtMs"` // optional; stamped server-side when zero
}

// FlagListResponse carries one consistent snapshot of flags together
// with the generation it was read at.
type FlagListResponse struct {
	Generation uint64        `json:"generation"`
	Flags      []FlagPayload `json:"flags"`
}

type FlagPayload struct {
	Key         string `json:"key"`
	Enabled     bool   `json:"enabled"`
	Value       string `json:"value"`
	Description string `json:"description"`
	UpdatedAtMs int64  `json:"updatedAtMs"`
}

// VersionResponse reports the current edit generation.
type VersionResponse struct {
	Generation uint64 `json:"generation"`
}
