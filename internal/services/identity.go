package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	cognito "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
)

// ErrInvalidCredentials is returned for any failed identity-provider login.
var ErrInvalidCredentials = errors.New("invalid credentials")

type IdentityResult struct {
	AccessToken string `json:"accessToken"`
}

// IdentityProvider is the delegated legacy email/password authority. The
// backend never sees or stores these passwords; it only forwards the calls.
type IdentityProvider interface {
	Authenticate(ctx context.Context, email, password string) (*IdentityResult, error)
	SignUp(ctx context.Context, email, password, name string) (providerID string, err error)
	ConfirmSignUp(ctx context.Context, email, code string) error
}

type CognitoProvider struct {
	client   *cognito.Client
	clientID string
}

func NewCognitoProvider(cfg aws.Config, clientID string) *CognitoProvider {
	return &CognitoProvider{
		client:   cognito.NewFromConfig(cfg),
		clientID: clientID,
	}
}

func (p *CognitoProvider) Authenticate(ctx context.Context, email, password string) (*IdentityResult, error) {
	out, err := p.client.InitiateAuth(ctx, &cognito.InitiateAuthInput{
		AuthFlow: types.AuthFlowTypeUserPasswordAuth,
		ClientId: aws.String(p.clientID),
		AuthParameters: map[string]string{
			"USERNAME": email,
			"PASSWORD": password,
		},
	})
	if err != nil {
		var notAuthorized *types.NotAuthorizedException
		var notFound *types.UserNotFoundException
		if errors.As(err, &notAuthorized) || errors.As(err, &notFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("cognito initiate auth: %w", err)
	}
	if out.AuthenticationResult == nil || out.AuthenticationResult.AccessToken == nil {
		return nil, ErrInvalidCredentials
	}

	return &IdentityResult{AccessToken: *out.AuthenticationResult.AccessToken}, nil
}

func (p *CognitoProvider) SignUp(ctx context.Context, email, password, name string) (string, error) {
	attrs := []types.AttributeType{
		{Name: aws.String("email"), Value: aws.String(email)},
	}
	if name != "" {
		attrs = append(attrs, types.AttributeType{Name: aws.String("name"), Value: aws.String(name)})
	}

	out, err := p.client.SignUp(ctx, &cognito.SignUpInput{
		ClientId:       aws.String(p.clientID),
		Username:       aws.String(email),
		Password:       aws.String(password),
		UserAttributes: attrs,
	})
	if err != nil {
		var exists *types.UsernameExistsException
		if errors.As(err, &exists) {
			return "", ErrConflict
		}
		return "", fmt.Errorf("cognito sign up: %w", err)
	}

	return aws.ToString(out.UserSub), nil
}

func (p *CognitoProvider) ConfirmSignUp(ctx context.Context, email, code string) error {
	_, err := p.client.ConfirmSignUp(ctx, &cognito.ConfirmSignUpInput{
		ClientId:         aws.String(p.clientID),
		Username:         aws.String(email),
		ConfirmationCode: aws.String(code),
	})
	if err != nil {
		var mismatch *types.CodeMismatchException
		var expired *types.ExpiredCodeException
		if errors.As(err, &mismatch) || errors.As(err, &expired) {
			return ErrVerificationFailed
		}
		return fmt.Errorf("cognito confirm sign up: %w", err)
	}
	return nil
}
