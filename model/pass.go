// model/pass.go
package model

// PassResult summarizes one fetch-resolve-grant pass for an entity.
type PassResult struct {
	PassID   string      `json:"pass_id"`
	EntityID EntityID    `json:"entity_id"`
	Trigger  TriggerKind `json:"trigger"`
	Rerun    bool        `json:"rerun"`
	Granted  int         `json:"granted"`
	Skipped  int         `json:"skipped"`
	Failed   int         `json:"failed"`
}

// PassFailure is published for operators when a pass ends in error. It holds
// what is needed to re-trigger the sync by re-editing the source entity.
type PassFailure struct {
	Result         PassResult `json:"result"`
	PrincipalLabel string     `json:"principal_label"`
	Err            error      `json:"-"`
}

func (f PassFailure) Error() string {
	return f.Err.Error()
}

func (f PassFailure) Unwrap() error {
	return f.Err
}
