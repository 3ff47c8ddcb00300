package secrets

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// SMResolver resolves secrets from AWS Secrets Manager.
type SMResolver struct {
	// client overrides the real client in tests.
	client smClient
}

// smClient is the subset of the Secrets Manager API we use.
type smClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Scheme returns "sm".
func (r *SMResolver) Scheme() string {
	return "sm"
}

// Resolve fetches a secret value. References are sm://region/secret-name or
// sm:///secret-name to use the default region from the AWS config chain.
func (r *SMResolver) Resolve(ctx context.Context, reference string) (string, error) {
	region, name, err := parseSMReference(reference)
	if err != nil {
		return "", err
	}

	client := r.client
	if client == nil {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(region))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return "", &BackendError{
				Backend:   "AWS Secrets Manager",
				Reference: reference,
				Reason:    "loading AWS config: " + err.Error(),
				Fix:       "Configure credentials with `aws configure` or set AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY.",
			}
		}
		client = secretsmanager.NewFromConfig(cfg)
	}

	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		var notFound *smtypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", &NotFoundError{Reference: reference, Backend: "AWS Secrets Manager"}
		}
		return "", &BackendError{
			Backend:   "AWS Secrets Manager",
			Reference: reference,
			Reason:    err.Error(),
		}
	}

	if out.SecretString == nil || *out.SecretString == "" {
		return "", &NotFoundError{Reference: reference, Backend: "AWS Secrets Manager"}
	}
	return *out.SecretString, nil
}

// parseSMReference extracts region and secret name from an sm:// URI.
// sm:///name -> ("", "name")
// sm://eu-central-1/name -> ("eu-central-1", "name")
func parseSMReference(ref string) (region, name string, err error) {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "sm" {
		return "", "", &InvalidReferenceError{Reference: ref, Reason: "expected sm:// scheme"}
	}

	region = u.Host
	name = strings.TrimPrefix(u.Path, "/")
	if name == "" {
		return "", "", &InvalidReferenceError{Reference: ref, Reason: "missing secret name"}
	}
	return region, name, nil
}

func init() {
	Register(&SMResolver{})
}
