package storage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"mime/multipart"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/chai2010/webp"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

const maxFileSize = 10 * 1024 * 1024 // 10MB raw room scans

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

func getS3Client() (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			os.Getenv("R2_ACCESS_KEY"),
			os.Getenv("R2_SECRET_KEY"),
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %v", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", os.Getenv("R2_ACCOUNT_ID")))
		o.UsePathStyle = true
		o.Region = "auto"
	})

	return client, nil
}

type RoomPhotoConfig struct {
	File        *multipart.FileHeader
	UserID      uint
	ProjectName string
}

type UploadResult struct {
	URL       string
	StorageID string
}

// UploadRoomPhoto recompresses a room scan to webp and stores it on R2 under
// a per-user, per-project key.
func UploadRoomPhoto(cfg RoomPhotoConfig) (UploadResult, error) {
	if cfg.File.Size > maxFileSize {
		return UploadResult{}, fmt.Errorf("file size too large, maximum is %d bytes", maxFileSize)
	}

	contentType := cfg.File.Header.Get("Content-Type")
	if !allowedTypes[contentType] {
		return UploadResult{}, fmt.Errorf("invalid file type, allowed types are: jpeg, png")
	}

	src, err := cfg.File.Open()
	if err != nil {
		return UploadResult{}, fmt.Errorf("could not open file: %v", err)
	}
	defer src.Close()

	img, _, err := image.Decode(src)
	if err != nil {
		return UploadResult{}, fmt.Errorf("could not decode image: %v", err)
	}

	// Room scans compress well as lossy webp without hurting the estimator.
	buf := new(bytes.Buffer)
	if err := webp.Encode(buf, img, &webp.Options{Quality: 85}); err != nil {
		return UploadResult{}, fmt.Errorf("could not encode webp: %v", err)
	}

	safeProject := slug.Make(cfg.ProjectName)
	uniqueID := fmt.Sprintf("%d-%s", time.Now().UnixNano(), uuid.New().String())
	objectKey := fmt.Sprintf("users/%d/projects/%s/rooms/%s.webp", cfg.UserID, safeProject, uniqueID)

	client, err := getS3Client()
	if err != nil {
		return UploadResult{}, err
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(os.Getenv("R2_BUCKET_NAME")),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("image/webp"),
	}

	if _, err := client.PutObject(context.TODO(), input); err != nil {
		return UploadResult{}, fmt.Errorf("could not upload file to R2: %v", err)
	}

	return UploadResult{
		URL:       fmt.Sprintf("https://cdn.tilemate.app/%s", objectKey),
		StorageID: uniqueID,
	}, nil
}

// DeleteRoomPhoto removes an uploaded scan by its public URL.
func DeleteRoomPhoto(fullURL string) error {
	objectKey := objectKeyFromURL(fullURL)

	client, err := getS3Client()
	if err != nil {
		return err
	}

	input := &s3.DeleteObjectInput{
		Bucket: aws.String(os.Getenv("R2_BUCKET_NAME")),
		Key:    aws.String(objectKey),
	}

	if _, err := client.DeleteObject(context.TODO(), input); err != nil {
		return fmt.Errorf("could not delete file from R2: %v", err)
	}

	return nil
}

func objectKeyFromURL(url string) string {
	const prefix = "https://cdn.tilemate.app/"
	if len(url) > len(prefix) && url[:len(prefix)] == prefix {
		return url[len(prefix):]
	}
	return url
}
