package signup

import (
	"bytes"
	"context"

	"github.com/ankitsahu6387/expenseTracker/pkg/api/client"
)

// API adapts the REST client to Uploader and Registrar.
type API struct {
	client *client.Client
}

func NewAPI(c *client.Client) *API {
	return &API{client: c}
}

func (a *API) UploadPhoto(ctx context.Context, p Photo) (string, error) {
	resp, err := a.client.UploadImage(ctx, client.Image{
		Filename:    p.Filename,
		ContentType: p.ContentType,
		Data:        bytes.NewReader(p.Data),
	})
	if err != nil {
		return "", err
	}
	return resp.ImageURL, nil
}

func (a *API) Register(ctx context.Context, req RegisterRequest) (AuthResult, error) {
	resp, err := a.client.Register(ctx, client.RegisterInput{
		FullName:        req.FullName,
		Email:           req.Email,
		Password:        req.Password.Reveal(),
		ProfileImageURL: req.ProfileImageURL,
	})
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Token: resp.Token, User: resp.User}, nil
}
