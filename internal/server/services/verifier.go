package services

import (
	"github.com/dmitrijs2005/zkvault/internal/common"
	"github.com/dmitrijs2005/zkvault/internal/server/models"
)

// Outcome is the result of checking a candidate auth hash against an account.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeMaster
	OutcomeDuress
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMaster:
		return "MASTER"
	case OutcomeDuress:
		return "DURESS"
	default:
		return "NONE"
	}
}

// CredentialVerifier decides whether a candidate hash is the master
// credential, the duress credential or neither. It has no side effects.
//
// By default the duress hash is only compared when the master hash did not
// match. With evaluateBoth set, both comparisons always run so a master
// match costs the same as any other outcome.
type CredentialVerifier struct {
	evaluateBoth bool
}

func NewCredentialVerifier(evaluateBoth bool) *CredentialVerifier {
	return &CredentialVerifier{evaluateBoth: evaluateBoth}
}

// Verify expects candidate to be already normalized (lowercase hex).
func (v *CredentialVerifier) Verify(account *models.Account, candidate string) Outcome {
	if account == nil || candidate == "" {
		return OutcomeNone
	}

	if v.evaluateBoth {
		master := common.HashesEqual(account.MasterAuthHash, candidate)
		duress := common.HashesEqual(account.DuressAuthHash, candidate)
		switch {
		case master:
			return OutcomeMaster
		case duress:
			return OutcomeDuress
		default:
			return OutcomeNone
		}
	}

	if common.HashesEqual(account.MasterAuthHash, candidate) {
		return OutcomeMaster
	}
	if common.HashesEqual(account.DuressAuthHash, candidate) {
		return OutcomeDuress
	}
	return OutcomeNone
}
