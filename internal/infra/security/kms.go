package security

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
)

// KMSAPI is the subset of the KMS client used for envelope encryption.
type KMSAPI interface {
	GenerateDataKey(ctx context.Context, in *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
	Decrypt(ctx context.Context, in *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

var _ KeyWrapper = (*KMSKeyWrapper)(nil)

// KMSKeyWrapper wraps the config master key under a KMS customer key.
type KMSKeyWrapper struct {
	client KMSAPI
	keyID  string
}

func NewKMSKeyWrapper(client KMSAPI, keyID string) *KMSKeyWrapper {
	return &KMSKeyWrapper{client: client, keyID: keyID}
}

// NewKMSKeyWrapperFromEnv builds a client from the default AWS credential chain.
func NewKMSKeyWrapperFromEnv(ctx context.Context, region, keyID string) (*KMSKeyWrapper, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewKMSKeyWrapper(kms.NewFromConfig(cfg), keyID), nil
}

func (w *KMSKeyWrapper) GenerateDataKey(ctx context.Context) ([]byte, []byte, error) {
	out, err := w.client.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(w.keyID),
		KeySpec: types.DataKeySpecAes256,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("kms generate data key: %w", err)
	}
	return out.Plaintext, out.CiphertextBlob, nil
}

func (w *KMSKeyWrapper) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	out, err := w.client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: wrapped,
		KeyId:          aws.String(w.keyID),
	})
	if err != nil {
		return nil, fmt.Errorf("kms decrypt: %w", err)
	}
	return out.Plaintext, nil
}
