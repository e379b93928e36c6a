package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"campus_parking/internal/domain"
	"campus_parking/internal/repository"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	qrcode "github.com/skip2/go-qrcode"
)

const qrPayloadVersion = 1

var errMalformedPayload = errors.New("malformed qr payload")

// QRPayload is the only thing encoded into the scannable image.
type QRPayload struct {
	Version    int    `json:"v"`
	Credential string `json:"c"`
	Hint       string `json:"h,omitempty"` // mã chỗ đỗ, chỉ để hiển thị
}

// Encode returns the compact JSON form.
func (p QRPayload) Encode() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal qr payload: %w", err)
	}
	return string(b), nil
}

// URLSafe returns the unpadded base64url form used in URL paths.
func (p QRPayload) URLSafe() (string, error) {
	raw, err := p.Encode()
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString([]byte(raw)), nil
}

// DecodePayload accepts either the JSON payload or its base64url form.
func DecodePayload(raw string) (QRPayload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return QRPayload{}, errMalformedPayload
	}

	body := []byte(raw)
	if !strings.HasPrefix(raw, "{") {
		decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(raw, "="))
		if err != nil {
			return QRPayload{}, fmt.Errorf("%w: %v", errMalformedPayload, err)
		}
		body = decoded
	}

	var p QRPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return QRPayload{}, fmt.Errorf("%w: %v", errMalformedPayload, err)
	}
	if p.Version != qrPayloadVersion {
		return QRPayload{}, fmt.Errorf("%w: unsupported version %d", errMalformedPayload, p.Version)
	}
	id, err := uuid.Parse(p.Credential)
	if err != nil || id.Version() != 4 {
		return QRPayload{}, fmt.Errorf("%w: credential is not a v4 uuid", errMalformedPayload)
	}
	p.Credential = id.String()
	return p, nil
}

// QRIssuer generates reservation credentials and renders their payloads.
type QRIssuer struct {
	imageSize int
	images    *cache.Cache
}

func NewQRIssuer(imageSize int) *QRIssuer {
	if imageSize <= 0 {
		imageSize = 256
	}
	return &QRIssuer{
		imageSize: imageSize,
		images:    cache.New(30*time.Minute, 10*time.Minute),
	}
}

// Issue returns a fresh random credential and the payload that carries it.
func (q *QRIssuer) Issue(spotHint string) (string, QRPayload, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", QRPayload{}, fmt.Errorf("generate credential: %w", err)
	}
	credential := id.String()
	return credential, QRPayload{Version: qrPayloadVersion, Credential: credential, Hint: spotHint}, nil
}

// Resolve decodes a scanned payload and loads the reservation it is bound to.
func (q *QRIssuer) Resolve(ctx context.Context, reservations repository.ReservationRepository, raw string) (*domain.Reservation, error) {
	p, err := DecodePayload(raw)
	if err != nil {
		return nil, newAppError(CodeInvalidQR, "the scanned code is not a valid parking QR code", err)
	}
	res, err := reservations.FindByCredential(ctx, p.Credential)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newAppError(CodeInvalidQR, "the scanned code does not belong to any reservation", nil)
		}
		return nil, storeError("QRIssuer.Resolve", err)
	}
	return res, nil
}

// PNG renders the payload for a reservation; images are cached per credential.
func (q *QRIssuer) PNG(res *domain.Reservation) ([]byte, error) {
	if cached, ok := q.images.Get(res.QRCredential); ok {
		return cached.([]byte), nil
	}
	payload, err := QRPayload{Version: qrPayloadVersion, Credential: res.QRCredential, Hint: res.SpotID}.Encode()
	if err != nil {
		return nil, err
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, q.imageSize)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}
	q.images.SetDefault(res.QRCredential, png)
	return png, nil
}

// Forget drops the cached image once the reservation can no longer be scanned.
func (q *QRIssuer) Forget(credential string) {
	q.images.Delete(credential)
}

// DataURI is the inline form returned in the booking response.
func (q *QRIssuer) DataURI(res *domain.Reservation) (string, error) {
	png, err := q.PNG(res)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
