// Package secrets resolves the webhook secret and mail API key, either from
// configuration or from SSM Parameter Store.
package secrets

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/ligadeals/ligadeals-web/internal/xerrors"
)

// ParameterGetter is the part of *ssm.Client the resolver uses.
type ParameterGetter interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type Resolver struct {
	ssm ParameterGetter
}

// NewResolver accepts a nil client when no parameter will be looked up.
func NewResolver(c ParameterGetter) *Resolver {
	return &Resolver{ssm: c}
}

// Resolve returns inline when set, else the decrypted value of param. Both
// empty yields "" and no error; callers decide whether that is fatal.
func (r *Resolver) Resolve(ctx context.Context, inline, param string) (string, error) {
	if inline != "" {
		return inline, nil
	}
	if param == "" {
		return "", nil
	}
	if r.ssm == nil {
		return "", xerrors.Newf("SSM parameter %s requested but no SSM client configured", param)
	}

	out, err := r.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(param),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", param)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", param)
	}

	v := strings.TrimSpace(*out.Parameter.Value)
	if v == "" {
		return "", xerrors.Newf("SSM parameter %s is empty", param)
	}
	return v, nil
}
