package shared

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	secretspb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// SecretReader resolves secret payloads by resource name.
type SecretReader interface {
	AccessSecret(ctx context.Context, name string) ([]byte, error)
	Close() error
}

type gcpSecretReader struct {
	client *secretmanager.Client
}

func NewGCPSecretReader(ctx context.Context) (SecretReader, error) {
	c, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %v", err)
	}
	return &gcpSecretReader{client: c}, nil
}

func (g *gcpSecretReader) AccessSecret(ctx context.Context, name string) ([]byte, error) {
	resp, err := g.client.AccessSecretVersion(ctx, &secretspb.AccessSecretVersionRequest{
		Name: SecretVersionName(name),
	})
	if err != nil {
		return nil, err
	}
	return resp.Payload.GetData(), nil
}

func (g *gcpSecretReader) Close() error {
	return g.client.Close()
}

// SecretVersionName pins a bare secret resource to its latest version.
// "projects/p/secrets/s" becomes "projects/p/secrets/s/versions/latest".
func SecretVersionName(name string) string {
	name = strings.TrimSuffix(strings.TrimSpace(name), "/")
	if strings.Contains(name, "/versions/") {
		return name
	}
	return name + "/versions/latest"
}
