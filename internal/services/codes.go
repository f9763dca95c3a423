package services

import (
	"context"
	"regexp"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zaqqye/seb_proctor/internal/models"
	"github.com/zaqqye/seb_proctor/internal/store"
	"github.com/zaqqye/seb_proctor/internal/utils"
)

const (
	DefaultCodeLength = 8
	MinCodeLength     = 4
	MaxCodeLength     = 12
	maxIssueAttempts  = 5
)

// codePrefixRe keeps issued codes inside the format clients accept: an
// optional leading "!" then letters, digits and dashes.
var codePrefixRe = regexp.MustCompile(`^!?[A-Z0-9-]*$`)

// CodeService issues and revokes bypass codes. Consumption happens in the
// schedule and unlock gates.
type CodeService struct {
	*core
}

type IssueRequest struct {
	IssuerID    string
	Scope       models.CodeScope
	ClassroomID string
	Length      int
	Prefix      string
}

func (c *CodeService) Issue(ctx context.Context, req IssueRequest) (*models.BypassCode, error) {
	if !req.Scope.Valid() {
		return nil, errors.Wrapf(ErrInvalidArgument, "unknown scope %q", req.Scope)
	}
	length := req.Length
	if length == 0 {
		length = DefaultCodeLength
	}
	if length < MinCodeLength || length > MaxCodeLength {
		return nil, errors.Wrapf(ErrInvalidArgument, "length must be between %d and %d", MinCodeLength, MaxCodeLength)
	}
	prefix := NormalizeCode(req.Prefix)
	if !codePrefixRe.MatchString(prefix) || len(prefix) > MaxCodeLength {
		return nil, errors.Wrapf(ErrInvalidArgument, "prefix %q must be up to %d letters, digits or dashes after an optional \"!\"", req.Prefix, MaxCodeLength)
	}

	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		code, err := utils.GenerateCode(length, prefix)
		if err != nil {
			return nil, errors.Wrap(err, "generate code")
		}
		rec := &models.BypassCode{Code: code, IssuerID: req.IssuerID, Scope: req.Scope}
		if req.ClassroomID != "" {
			classroom := req.ClassroomID
			rec.ClassroomID = &classroom
		}
		err = c.store.CreateCode(ctx, rec)
		if errors.Is(err, store.ErrDuplicate) {
			continue
		}
		if err != nil {
			return nil, err
		}
		log.Info().
			Str("code_id", rec.ID).
			Str("scope", string(rec.Scope)).
			Str("issuer_id", rec.IssuerID).
			Msg("bypass code issued")
		return rec, nil
	}
	return nil, errors.New("could not generate a unique bypass code")
}

func (c *CodeService) List(ctx context.Context, f store.CodeFilter) ([]models.BypassCode, error) {
	return c.store.ListCodes(ctx, f)
}

// Revoke spends an unused code. Only the issuer or an admin may revoke.
func (c *CodeService) Revoke(ctx context.Context, id, actorID string, admin bool) (*models.BypassCode, error) {
	var rec *models.BypassCode
	err := c.store.Transaction(ctx, func(tx store.Tx) error {
		var err error
		rec, err = tx.LockCodeByID(id)
		if err != nil {
			return notFound(err, ErrCodeNotFound)
		}
		if !admin && rec.IssuerID != actorID {
			return ErrForbidden
		}
		if rec.Spent() {
			return nil
		}
		now := c.now()
		rec.RevokedAt = &now
		return tx.SaveCode(rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}
