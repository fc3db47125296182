package integration

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smartfix-dev/smartfix-api/models"
	"github.com/smartfix-dev/smartfix-api/services"
	"github.com/smartfix-dev/smartfix-api/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

// FileUploadIntegrationTestSuite uploads avatars to local storage and serves them back
type FileUploadIntegrationTestSuite struct {
	suite.Suite
	h      *testutil.Harness
	dir    string
	client *models.User
}

// SetupTest runs before each test
func (suite *FileUploadIntegrationTestSuite) SetupTest() {
	testutil.MustSetTestEnvironment(suite.T())
	suite.h = testutil.NewHarness(suite.T())
	suite.dir = suite.T().TempDir()
	services.SetImageService(services.NewLocalImageService(suite.dir))
	suite.client = suite.h.CreateUser(suite.T(), "Carol Client", "carol@example.com", models.RoleClient, true)
}

// TearDownTest runs after each test
func (suite *FileUploadIntegrationTestSuite) TearDownTest() {
	services.SetImageService(nil)
}

func (suite *FileUploadIntegrationTestSuite) upload(user *models.User, token, filename string, content []byte) *testutil.Response {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("avatar", filename)
	suite.Require().NoError(err)
	_, err = part.Write(content)
	suite.Require().NoError(err)
	suite.Require().NoError(writer.Close())

	resp := suite.h.Send(suite.T(), http.MethodPost, fmt.Sprintf("/users/%d/avatar", user.ID), token, writer.FormDataContentType(), body)
	defer resp.Body.Close()
	return testutil.DecodeResponse(suite.T(), resp)
}

func (suite *FileUploadIntegrationTestSuite) TestUploadAndServeAvatar() {
	t := suite.T()
	content := []byte("\x89PNG\r\n\x1a\nfake image body")

	resp := suite.upload(suite.client, suite.h.TokenFor(t, suite.client), "me.png", content)
	suite.Require().Equal(http.StatusOK, resp.Status)

	var user models.User
	resp.DecodeData(t, &user)
	suite.Require().NotNil(user.AvatarRef)
	suite.Require().NotNil(user.AvatarURL)
	assert.True(t, strings.HasPrefix(*user.AvatarURL, "/api/v1/uploads/"))
	assert.FileExists(t, filepath.Join(suite.dir, *user.AvatarRef))

	served, err := suite.h.Server.Client().Get(suite.h.Server.URL + *user.AvatarURL)
	suite.Require().NoError(err)
	defer served.Body.Close()
	assert.Equal(t, http.StatusOK, served.StatusCode)
	assert.Equal(t, "image/png", served.Header.Get("Content-Type"))
	got, err := io.ReadAll(served.Body)
	suite.Require().NoError(err)
	assert.Equal(t, content, got)
}

func (suite *FileUploadIntegrationTestSuite) TestReplacingAvatarRemovesOldFile() {
	t := suite.T()
	token := suite.h.TokenFor(t, suite.client)

	var first, second models.User
	suite.upload(suite.client, token, "first.jpg", []byte("one")).DecodeData(t, &first)
	suite.upload(suite.client, token, "second.jpeg", []byte("two")).DecodeData(t, &second)

	suite.Require().NotNil(first.AvatarRef)
	suite.Require().NotNil(second.AvatarRef)
	assert.NotEqual(t, *first.AvatarRef, *second.AvatarRef)

	_, err := os.Stat(filepath.Join(suite.dir, *first.AvatarRef))
	assert.True(t, os.IsNotExist(err))
	assert.FileExists(t, filepath.Join(suite.dir, *second.AvatarRef))
}

func (suite *FileUploadIntegrationTestSuite) TestRejectsOtherFormats() {
	t := suite.T()

	resp := suite.upload(suite.client, suite.h.TokenFor(t, suite.client), "notes.txt", []byte("hello"))

	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, "VALIDATION_ERROR", resp.ErrorCode())
}

func (suite *FileUploadIntegrationTestSuite) TestCannotUploadForSomeoneElse() {
	t := suite.T()
	other := suite.h.CreateUser(t, "Other", "other@example.com", models.RoleClient, true)

	resp := suite.upload(suite.client, suite.h.TokenFor(t, other), "me.png", []byte("png"))

	assert.Equal(t, http.StatusForbidden, resp.Status)
	entries, err := os.ReadDir(suite.dir)
	suite.Require().NoError(err)
	assert.Empty(t, entries)
}

func (suite *FileUploadIntegrationTestSuite) TestServeMissingImage() {
	t := suite.T()

	resp := suite.h.Do(t, http.MethodGet, "/uploads/nothing.png", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Equal(t, "FILE_NOT_FOUND", resp.ErrorCode())

	resp = suite.h.Do(t, http.MethodGet, "/uploads/secret.txt", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, "INVALID_FILE_TYPE", resp.ErrorCode())
}

func (suite *FileUploadIntegrationTestSuite) TestDeletingUserRemovesAvatar() {
	t := suite.T()
	admin := suite.h.CreateUser(t, "Ada", "ada@example.com", models.RoleAdmin, true)

	var user models.User
	suite.upload(suite.client, suite.h.TokenFor(t, suite.client), "me.png", []byte("png")).DecodeData(t, &user)
	suite.Require().NotNil(user.AvatarRef)

	resp := suite.h.Do(t, http.MethodDelete, fmt.Sprintf("/users/%d", suite.client.ID), suite.h.TokenFor(t, admin), nil)
	suite.Require().Equal(http.StatusOK, resp.Status)

	_, err := os.Stat(filepath.Join(suite.dir, *user.AvatarRef))
	assert.True(t, os.IsNotExist(err))
}

func TestFileUploadIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(FileUploadIntegrationTestSuite))
}
