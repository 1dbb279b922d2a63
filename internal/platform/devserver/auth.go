package devserver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/octscan/octscan/internal/domain/roles"
	"github.com/octscan/octscan/internal/platform/gateway"
	"github.com/octscan/octscan/internal/platform/middleware"
)

const currentUserKey = "current_user"

func (s *Server) issueToken(username string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.SigningKey)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return token, nil
}

func errCredentials() error {
	return echo.NewHTTPError(http.StatusUnauthorized, "Could not validate credentials")
}

// requireAuth accepts an HS256 bearer token whose subject is a known user.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return echo.NewHTTPError(http.StatusUnauthorized, "Not authenticated")
		}

		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
			return s.cfg.SigningKey, nil
		},
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithTimeFunc(s.now),
			jwt.WithExpirationRequired(),
		)
		if err != nil || !token.Valid || claims.Subject == "" {
			return errCredentials()
		}

		u, ok := s.data.user(claims.Subject)
		if !ok {
			return errCredentials()
		}
		c.Set(currentUserKey, u.User)
		c.Set(middleware.UserKey, u.Username)
		return next(c)
	}
}

func currentUser(c echo.Context) gateway.User {
	u, _ := c.Get(currentUserKey).(gateway.User)
	return u
}

func (s *Server) tokenResponse(u gateway.User) (*gateway.TokenResponse, error) {
	token, err := s.issueToken(u.Username)
	if err != nil {
		return nil, err
	}
	return &gateway.TokenResponse{AccessToken: token, TokenType: "bearer", User: u}, nil
}

func (s *Server) Register(c echo.Context) error {
	var reg gateway.Registration
	if err := c.Bind(&reg); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "Invalid request body")
	}
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = strings.TrimSpace(reg.Email)
	if reg.Username == "" || reg.Email == "" || reg.Password == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "username, email and password are required")
	}
	role := roles.Parse(reg.Role)
	if role == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "role must be doctor or technician")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u, err := s.data.addUser(reg.Username, reg.Email, string(role), hash, s.now())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	resp, err := s.tokenResponse(u)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) Login(c echo.Context) error {
	var creds gateway.Credentials
	if err := c.Bind(&creds); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "Invalid request body")
	}

	u, ok := s.data.user(creds.Username)
	if !ok || bcrypt.CompareHashAndPassword(u.hash, []byte(creds.Password)) != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Incorrect username or password")
	}

	resp, err := s.tokenResponse(u.User)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, currentUser(c))
}
