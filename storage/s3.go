package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"cart-hand/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewS3Client erstellt einen S3-Client für Strato HiDrive.
func NewS3Client(cfg *config.Config) (*s3.Client, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.StratoS3URL,
				SigningRegion:     cfg.StratoS3Region,
				HostnameImmutable: true,
			}, nil
		},
	)
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.StratoS3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.StratoS3Key, cfg.StratoS3Secret, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg), nil
}

// UploadFile lädt eine Datei ins S3 hoch und gibt den Link zurück.
func UploadFile(client *s3.Client, bucket, key string, data []byte, cfg *config.Config) (string, error) {
	_, err := client.PutObject(context.TODO(), &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", err
	}
	link := fmt.Sprintf("%s/%s/%s", cfg.StratoS3URL, bucket, key)
	return link, nil
}

// UploadSnapshot persistiert den Diagnose-Snapshot eines Laufs unter festen
// Keys: das gerenderte Markup und die Liste der beobachteten Response-URLs.
// Rückgabe ist der gemeinsame Key-Prefix.
func UploadSnapshot(client *s3.Client, cfg *config.Config, runID uint, html string, responseURLs []string) (string, error) {
	prefix := fmt.Sprintf("debug/run-%d", runID)

	if html != "" {
		key := prefix + "/page.html"
		if _, err := UploadFile(client, cfg.StratoS3Bucket, key, []byte(html), cfg); err != nil {
			return "", err
		}
	}

	urlData, err := json.MarshalIndent(responseURLs, "", "  ")
	if err != nil {
		return "", err
	}
	key := prefix + "/responses.json"
	if _, err := UploadFile(client, cfg.StratoS3Bucket, key, urlData, cfg); err != nil {
		return "", err
	}

	return prefix, nil
}
