package auth

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/om-ray/SNPaymentPortal/testutils"
)

func TestMain(m *testing.M) {
	testutils.InitTestMain()

	log.SetOutput(io.Discard)
	exitCode := m.Run()
	log.SetOutput(os.Stdout)

	os.Exit(exitCode)
}

func doRequest(r http.Handler, path string, body map[string]string) *httptest.ResponseRecorder {
	jsonData, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, path, bytes.NewBuffer(jsonData))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestCreateUser_Success(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT (.+) FROM "users" WHERE email = (.+) AND "users"."deleted_at" IS NULL ORDER BY "users"."id" LIMIT (.+)`).
		WithArgs("trader@example.com", 1).
		WillReturnError(gorm.ErrRecordNotFound)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "users" (.+) RETURNING "id"`).
		WillReturnRows(mock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	r := testutils.SetupTestRouter()
	r.POST("/register", CreateUser)

	resp := doRequest(r, "/register", map[string]string{
		"email":    "trader@example.com",
		"password": "Password123",
	})

	assert.Equal(t, http.StatusCreated, resp.Code)

	var respBody map[string]string
	json.Unmarshal(resp.Body.Bytes(), &respBody)
	assert.Equal(t, "User created successfully", respBody["message"])
	assert.Equal(t, "trader@example.com", respBody["email"])
}

func TestCreateUser_EmptyEmail(t *testing.T) {
	r := testutils.SetupTestRouter()
	r.POST("/register", CreateUser)

	resp := doRequest(r, "/register", map[string]string{
		"email":    "",
		"password": "Password123",
	})

	assert.Equal(t, http.StatusBadRequest, resp.Code)

	var respBody map[string]string
	json.Unmarshal(resp.Body.Bytes(), &respBody)
	assert.Contains(t, respBody["error"], "Field validation for 'Email' failed")
}

func TestCreateUser_InvalidEmailFormat(t *testing.T) {
	r := testutils.SetupTestRouter()
	r.POST("/register", CreateUser)

	resp := doRequest(r, "/register", map[string]string{
		"email":    "invalid-email",
		"password": "Password123",
	})

	assert.Equal(t, http.StatusBadRequest, resp.Code)

	var respBody map[string]string
	json.Unmarshal(resp.Body.Bytes(), &respBody)
	assert.Contains(t, respBody["error"], "Field validation for 'Email' failed")
}

func TestCreateUser_WeakPassword(t *testing.T) {
	testCases := []struct {
		name     string
		password string
	}{
		{"OnlyLowercase", "password123"},
		{"OnlyUppercase", "PASSWORD123"},
		{"NoDigits", "PasswordOnly"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := testutils.SetupTestRouter()
			r.POST("/register", CreateUser)

			resp := doRequest(r, "/register", map[string]string{
				"email":    "trader@example.com",
				"password": tc.password,
			})

			assert.Equal(t, http.StatusBadRequest, resp.Code)

			var respBody map[string]string
			json.Unmarshal(resp.Body.Bytes(), &respBody)
			assert.Contains(t, respBody["error"], "The password must contain at least one lowercase, one uppercase and one digit")
		})
	}
}

func TestCreateUser_EmailAlreadyExists(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT (.+) FROM "users" WHERE email = (.+) AND "users"."deleted_at" IS NULL ORDER BY "users"."id" LIMIT (.+)`).
		WithArgs("existing@example.com", 1).
		WillReturnRows(mock.NewRows([]string{"id", "email"}).AddRow(1, "existing@example.com"))

	r := testutils.SetupTestRouter()
	r.POST("/register", CreateUser)

	resp := doRequest(r, "/register", map[string]string{
		"email":    "existing@example.com",
		"password": "Password123",
	})

	assert.Equal(t, http.StatusConflict, resp.Code)

	var respBody map[string]string
	json.Unmarshal(resp.Body.Bytes(), &respBody)
	assert.Contains(t, respBody["error"], "This email is already used")
}

func TestLogin_Success(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	hashed, _ := bcrypt.GenerateFromPassword([]byte("Password123"), bcrypt.DefaultCost)
	mock.ExpectQuery(`SELECT (.+) FROM "users" WHERE email = (.+) AND "users"."deleted_at" IS NULL ORDER BY "users"."id" LIMIT (.+)`).
		WithArgs("trader@example.com", 1).
		WillReturnRows(mock.NewRows([]string{"id", "email", "password", "role"}).
			AddRow(1, "trader@example.com", string(hashed), "USER"))

	r := testutils.SetupTestRouter()
	r.POST("/login", Login)

	resp := doRequest(r, "/login", map[string]string{
		"email":    "trader@example.com",
		"password": "Password123",
	})

	assert.Equal(t, http.StatusOK, resp.Code)

	var respBody map[string]string
	json.Unmarshal(resp.Body.Bytes(), &respBody)
	assert.NotEmpty(t, respBody["token"])
}

func TestLogin_WrongPassword(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	hashed, _ := bcrypt.GenerateFromPassword([]byte("Password123"), bcrypt.DefaultCost)
	mock.ExpectQuery(`SELECT (.+) FROM "users" WHERE email = (.+) AND "users"."deleted_at" IS NULL ORDER BY "users"."id" LIMIT (.+)`).
		WithArgs("trader@example.com", 1).
		WillReturnRows(mock.NewRows([]string{"id", "email", "password", "role"}).
			AddRow(1, "trader@example.com", string(hashed), "USER"))

	r := testutils.SetupTestRouter()
	r.POST("/login", Login)

	resp := doRequest(r, "/login", map[string]string{
		"email":    "trader@example.com",
		"password": "WrongPassword1",
	})

	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	var respBody map[string]string
	json.Unmarshal(resp.Body.Bytes(), &respBody)
	assert.Equal(t, "Wrong credentials", respBody["error"])
}

func TestLogin_UnknownEmail(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT (.+) FROM "users" WHERE email = (.+) AND "users"."deleted_at" IS NULL ORDER BY "users"."id" LIMIT (.+)`).
		WithArgs("nobody@example.com", 1).
		WillReturnError(gorm.ErrRecordNotFound)

	r := testutils.SetupTestRouter()
	r.POST("/login", Login)

	resp := doRequest(r, "/login", map[string]string{
		"email":    "nobody@example.com",
		"password": "Password123",
	})

	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	var respBody map[string]string
	json.Unmarshal(resp.Body.Bytes(), &respBody)
	assert.Equal(t, "User not found", respBody["error"])
}

func TestHashPassword(t *testing.T) {
	hashed, _ := hashPassword("Password123")
	assert.NotEmpty(t, hashed)
	assert.NotEqual(t, "Password123", hashed)

	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte("Password123"))
	assert.NoError(t, err)

	err = bcrypt.CompareHashAndPassword([]byte(hashed), []byte("WrongPassword"))
	assert.Error(t, err)
}

func TestSamePassword(t *testing.T) {
	hashed, _ := hashPassword("Test123!")
	assert.True(t, samePassword("Test123!", hashed))
	assert.False(t, samePassword("Test123!!", hashed))
}
