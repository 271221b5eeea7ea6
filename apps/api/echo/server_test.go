package echoapi_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core/directory"
	"github.com/trezcool/academia/core/principal"
	"github.com/trezcool/academia/core/session"
)

var codeRegex = regexp.MustCompile(`\b[0-9a-f]{32}\b`)

func TestHome(t *testing.T) {
	req, rec := newRequest(http.MethodGet, "/")
	app.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Academia API!", rec.Body.String())
}

func TestNotFound(t *testing.T) {
	tt := httpTest{
		method:   http.MethodGet,
		path:     "/v1/nowhere",
		wantCode: http.StatusNotFound,
		wantData: failure("NOT_FOUND", "Not Found"),
	}
	req, rec := newRequest(tt.method, tt.path)
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, tt, rec)
}

func TestAuth_register(t *testing.T) {
	path := "/v1/auth/register"
	valid := marshalObj(t, principal.NewSchool{
		SchoolName:      "Institut Kasavubu",
		Name:            "Nana Addo",
		Email:           "nana@kasavubu.cd",
		Password:        pwd,
		PasswordConfirm: pwd,
	})

	req, rec := newRequest(http.MethodPost, path, valid)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decodeResponse(t, rec)
	var data struct {
		session.Pair
		School principal.School `json:"school"`
		Staff  principal.Staff  `json:"staff"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, data.AccessToken)
	assert.NotEmpty(t, data.RefreshToken)
	assert.Equal(t, "Institut Kasavubu", data.School.Name)
	assert.Equal(t, data.School.ID, data.Staff.SchoolID)
	assert.Equal(t, principal.RolePrincipal, data.Staff.Role)

	// the new principal can use their token right away
	req, rec = newAuthRequest(http.MethodGet, "/v1/staff/me", data.AccessToken)
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	tests := []httpTest{
		{
			name:     "duplicate email",
			body:     valid,
			wantCode: http.StatusConflict,
			wantData: failure("UNIQUE_VIOLATION", "a staff member with this email already exists",
				map[string]string{"email": "a staff member with this email already exists"}),
		},
		{
			name:     "invalid data",
			body:     []byte(`{"schoolName": "X", "email": "nope", "password": "abc", "passwordConfirm": "abd"}`),
			wantCode: http.StatusBadRequest,
			extra:    []string{"name", "email", "password", "passwordConfirm"},
		},
		{
			name:     "malformed json",
			body:     []byte(`{"schoolName": `),
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, path, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantData != nil {
				checkCodeAndData(t, tt, rec)
				return
			}
			checkCode(t, tt, rec)
			resp := decodeResponse(t, rec)
			assert.False(t, resp.Success)
			if fields, ok := tt.extra.([]string); ok {
				assert.Equal(t, "VALIDATION_ERROR", resp.Code)
				for _, f := range fields {
					assert.Contains(t, resp.Errors, f)
				}
			}
		})
	}
}

func TestAuth_staffLogin(t *testing.T) {
	path := "/v1/auth/staff/login"
	tests := []httpTest{
		{
			name:     "wrong password",
			body:     marshalObj(t, StaffLoginRequest{Email: "ama@wima.cd", Password: "nope"}),
			wantCode: http.StatusUnauthorized,
			wantData: failure("INVALID_CREDENTIALS", "invalid credentials"),
		},
		{
			name:     "unknown email",
			body:     marshalObj(t, StaffLoginRequest{Email: "nobody@wima.cd", Password: pwd}),
			wantCode: http.StatusUnauthorized,
			wantData: failure("INVALID_CREDENTIALS", "invalid credentials"),
		},
		{
			name:     "missing fields",
			body:     []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: failure("VALIDATION_ERROR", "invalid data", map[string]string{
				"email":    "this field is required",
				"password": "this field is required",
			}),
		},
		{
			name:     "success",
			body:     marshalObj(t, StaffLoginRequest{Email: " AMA@wima.cd", Password: pwd}),
			wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, path, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantData != nil {
				checkCodeAndData(t, tt, rec)
				return
			}
			checkCode(t, tt, rec)
			var data StaffSession
			require.NoError(t, json.Unmarshal(decodeResponse(t, rec).Data, &data))
			assert.Equal(t, principalA.ID, data.Staff.ID)
			assert.NotEmpty(t, data.AccessToken)
			assert.NotEqual(t, data.AccessToken, data.RefreshToken)
		})
	}
}

func TestAuth_studentLogin(t *testing.T) {
	path := "/v1/auth/student/login"
	tests := []httpTest{
		{
			name:     "other school",
			body:     marshalObj(t, StudentLoginRequest{SchoolID: schoolB.ID, RollNumber: "6A-01", Password: pwd}),
			wantCode: http.StatusUnauthorized,
			wantData: failure("INVALID_CREDENTIALS", "invalid credentials"),
		},
		{
			name:     "wrong password",
			body:     marshalObj(t, StudentLoginRequest{SchoolID: schoolA.ID, RollNumber: "6A-01", Password: pwd + "!"}),
			wantCode: http.StatusUnauthorized,
			wantData: failure("INVALID_CREDENTIALS", "invalid credentials"),
		},
		{
			name:     "success",
			body:     marshalObj(t, StudentLoginRequest{SchoolID: schoolA.ID, RollNumber: "6A-01", Password: pwd}),
			wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, path, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantData != nil {
				checkCodeAndData(t, tt, rec)
				return
			}
			checkCode(t, tt, rec)
			var data StudentSession
			require.NoError(t, json.Unmarshal(decodeResponse(t, rec).Data, &data))
			assert.Equal(t, studentA.ID, data.Student.ID)

			// the pair is a student pair
			req, rec = newAuthRequest(http.MethodGet, "/v1/students/me", data.AccessToken)
			app.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	// log in
	req, rec := newRequest(http.MethodPost, "/v1/auth/staff/login",
		marshalObj(t, StaffLoginRequest{Email: "ama@wima.cd", Password: pwd}))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var login StaffSession
	require.NoError(t, json.Unmarshal(decodeResponse(t, rec).Data, &login))

	me := func(token string) *httptest.ResponseRecorder {
		req, rec := newAuthRequest(http.MethodGet, "/v1/staff/me", token)
		app.ServeHTTP(rec, req)
		return rec
	}
	expired := httpTest{wantCode: http.StatusUnauthorized, wantData: failure("TOKEN_EXPIRED", "token expired")}

	rec = me(login.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var staff principal.Staff
	require.NoError(t, json.Unmarshal(decodeResponse(t, rec).Data, &staff))
	assert.Equal(t, principalA.ID, staff.ID)

	// an access token cannot refresh
	req, rec = newRequest(http.MethodPost, "/v1/auth/refresh", marshalObj(t, RefreshRequest{RefreshToken: login.AccessToken}))
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_TOKEN", decodeResponse(t, rec).Code)

	// expire
	clock.Advance(conf.AccessTokenTTL + time.Minute)
	checkCodeAndData(t, expired, me(login.AccessToken))
	checkCodeAndData(t, expired, me(login.AccessToken)) // never accepted on retry

	// refresh
	req, rec = newRequest(http.MethodPost, "/v1/auth/refresh", marshalObj(t, RefreshRequest{RefreshToken: login.RefreshToken}))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var pair session.Pair
	require.NoError(t, json.Unmarshal(decodeResponse(t, rec).Data, &pair))
	assert.NotEqual(t, login.AccessToken, pair.AccessToken)

	checkCodeAndData(t, expired, me(login.AccessToken))
	assert.Equal(t, http.StatusOK, me(pair.AccessToken).Code)

	// a refresh token cannot authenticate
	rec = me(pair.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_TOKEN", decodeResponse(t, rec).Code)
}

func TestAudiences(t *testing.T) {
	schoolStaff := fmt.Sprintf("/v1/schools/%s/staff", schoolA.ID)
	schoolStudents := fmt.Sprintf("/v1/schools/%s/students", schoolA.ID)
	wrongAudience := failure("WRONG_AUDIENCE", "token not valid for this endpoint")

	tests := []httpTest{
		{
			name:     "no token",
			path:     "/v1/staff/me",
			wantCode: http.StatusUnauthorized,
			wantData: failure("MISSING_TOKEN", "missing bearer token"),
		},
		{
			name:     "garbage token",
			path:     "/v1/staff/me",
			token:    "not.a.jwt",
			wantCode: http.StatusUnauthorized,
			wantData: failure("INVALID_TOKEN", "invalid token"),
		},
		{
			name:     "staff token on student endpoint",
			path:     "/v1/students/me",
			token:    staffToken(t, principalA),
			wantCode: http.StatusForbidden,
			wantData: wrongAudience,
		},
		{
			name:     "student token on staff endpoint",
			path:     "/v1/staff/me",
			token:    studentToken(t, studentA),
			wantCode: http.StatusForbidden,
			wantData: wrongAudience,
		},
		{
			name:     "student token on principal endpoint",
			path:     schoolStaff,
			token:    studentToken(t, studentA),
			wantCode: http.StatusForbidden,
			wantData: wrongAudience,
		},
		{
			name:     "teacher on principal endpoint",
			path:     schoolStaff,
			token:    staffToken(t, teacherA),
			wantCode: http.StatusForbidden,
			wantData: failure("INSUFFICIENT_PERMISSIONS", "insufficient permissions"),
		},
		{
			name:     "teacher on teacher endpoint",
			path:     schoolStudents,
			token:    staffToken(t, teacherA),
			wantCode: http.StatusOK,
		},
		{
			name:     "student on student endpoint",
			path:     "/v1/students/me",
			token:    studentToken(t, studentA),
			wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			if tt.wantData != nil {
				checkCodeAndData(t, tt, rec)
			} else {
				checkCode(t, tt, rec)
			}
		})
	}

	t.Run("basic scheme", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/staff/me")
		req.Header.Set("Authorization", "Basic "+staffToken(t, principalA))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "MISSING_TOKEN", decodeResponse(t, rec).Code)
	})
}

func TestSchoolScope(t *testing.T) {
	tokenA := staffToken(t, principalA)
	own := fmt.Sprintf("/v1/schools/%s", schoolA.ID)
	other := fmt.Sprintf("/v1/schools/%s", schoolB.ID)
	crossTenant := failure("CROSS_TENANT_ACCESS", "cross-tenant access denied")

	newStudentWithKey := func(roll, key string, schoolID interface{}) []byte {
		body := map[string]interface{}{
			"classId":    "6A",
			"rollNumber": roll,
			"name":       "Akosua Darko",
			"password":   pwd,
		}
		if schoolID != nil {
			body[key] = schoolID
		}
		return marshalObj(t, body)
	}
	newStudent := func(roll string, schoolID interface{}) []byte {
		return newStudentWithKey(roll, "schoolId", schoolID)
	}
	formRequest := func(path string, values url.Values) (*http.Request, *httptest.ResponseRecorder) {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Authorization", "Bearer "+tokenA)
		return req, httptest.NewRecorder()
	}

	tests := []struct {
		name     string
		request  func() (*http.Request, *httptest.ResponseRecorder)
		wantCode int
		wantData []byte
	}{
		{
			name: "path, GET",
			request: func() (*http.Request, *httptest.ResponseRecorder) {
				return newAuthRequest(http.MethodGet, other+"/students", tokenA)
			},
			wantCode: http.StatusForbidden,
			wantData: crossTenant,
		},
		{
			name: "path, POST",
			request: func() (*http.Request, *httptest.ResponseRecorder) {
				return newAuthRequest(http.MethodPost, other+"/staff/"+principalB.ID+"/deactivate", tokenA)
			},
			wantCode: http.StatusForbidden,
			wantData: crossTenant,
		},
		{
			name: "query",
			request: func() (*http.Request, *httptest.ResponseRecorder) {
				return newAuthRequest(http.MethodGet, own+"/students?schoolId="+schoolB.ID, tokenA)
			},
			wantCode: http.StatusForbidden,
			wantData: crossTenant,
		},
		{
			name: "own query",
			request: func() (*http.Request, *httptest.ResponseRecorder) {
				return newAuthRequest(http.MethodGet, own+"/students?schoolId="+schoolA.ID, tokenA)
			},
			wantCode: http.StatusOK,
		},
		{
			name: "json body",
			request: func() (*http.Request, *httptest.ResponseRecorder) {
				return newAuthRequest(http.MethodPost, own+"/students", tokenA, newStudent("6A-90", schoolB.ID))
			},
			wantCode: http.StatusForbidden,
			wantData: crossTenant,
		},
		{
			name: "json body, not a string",
			request: func() (*http.Request, *httptest.ResponseRecorder) {
				return newAuthRequest(http.MethodPost, own+"/students", tokenA, newStudent("6A-91", 42))
			},
			wantCode: http.StatusForbidden,
			wantData: crossTenant,
		},
		{
			name: "json body, other key case",
			request: func() (*http.Request, *httptest.ResponseRecorder) {
				return newAuthRequest(http.MethodPost, own+"/students", tokenA, newStudentWithKey("6A-94", "SchoolID", schoolB.ID))
			},
			wantCode: http.StatusForbidden,
			wantData: crossTenant,
		},
		{
			name: "json body, lower case key",
			request: func() (*http.Request, *httptest.ResponseRecorder) {
				return newAuthRequest(http.MethodPost, own+"/students", tokenA, newStudentWithKey("6A-95", "schoolid", schoolB.ID))
			},
			wantCode: http.StatusForbidden,
			wantData: crossTenant,
		},
		{
			name: "own json body",
			request: func() (*http.Request, *httptest.ResponseRecorder) {
				return newAuthRequest(http.MethodPost, own+"/students", tokenA, newStudent("6A-92", schoolA.ID))
			},
			wantCode: http.StatusCreated,
		},
		{
			name: "xml body",
			request: func() (*http.Request, *httptest.ResponseRecorder) {
				body := fmt.Sprintf("<student><schoolId>%s</schoolId><classId>6A</classId><rollNumber>6A-96</rollNumber>"+
					"<name>Akosua Darko</name><password>%s</password></student>", schoolB.ID, pwd)
				req := httptest.NewRequest(http.MethodPost, own+"/students", strings.NewReader(body))
				req.Header.Set("Content-Type", "application/xml")
				req.Header.Set("Authorization", "Bearer "+tokenA)
				return req, httptest.NewRecorder()
			},
			wantCode: http.StatusBadRequest,
			wantData: failure("UNSUPPORTED_MEDIA_TYPE", "XML request bodies are not accepted"),
		},
		{
			name: "form",
			request: func() (*http.Request, *httptest.ResponseRecorder) {
				return formRequest(own+"/students", url.Values{"schoolId": {schoolB.ID}, "rollNumber": {"6A-93"}})
			},
			wantCode: http.StatusForbidden,
			wantData: crossTenant,
		},
		{
			name: "multipart",
			request: func() (*http.Request, *httptest.ResponseRecorder) {
				return newUploadRequest(t, own+"/students/import", tokenA, map[string]string{"schoolId": schoolB.ID},
					&upload{filename: "students.csv", contentType: "text/csv", content: []byte("rollNumber,classId,name,password\n")})
			},
			wantCode: http.StatusForbidden,
			wantData: crossTenant,
		},
		{
			name: "other school's id under own path",
			request: func() (*http.Request, *httptest.ResponseRecorder) {
				return newAuthRequest(http.MethodPost, own+"/staff/"+principalB.ID+"/deactivate", tokenA)
			},
			wantCode: http.StatusNotFound,
			wantData: failure("NOT_FOUND", "principal not found"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := tt.request()
			app.ServeHTTP(rec, req)
			ht := httpTest{wantCode: tt.wantCode, wantData: tt.wantData}
			if tt.wantData != nil {
				checkCodeAndData(t, ht, rec)
			} else {
				checkCode(t, ht, rec)
			}
		})
	}
}

func TestDirectory_staff(t *testing.T) {
	tokenA := staffToken(t, principalA)
	path := fmt.Sprintf("/v1/schools/%s/staff", schoolA.ID)

	// create
	req, rec := newAuthRequest(http.MethodPost, path, tokenA, marshalObj(t, principal.NewStaff{
		Name:     "Kojo Mensah",
		Email:    "kojo@wima.cd",
		Role:     principal.RoleTeacher,
		Password: pwd,
	}))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var kojo principal.Staff
	require.NoError(t, json.Unmarshal(decodeResponse(t, rec).Data, &kojo))
	assert.Equal(t, schoolA.ID, kojo.SchoolID)
	assert.True(t, kojo.IsActive)

	tests := []httpTest{
		{
			name: "duplicate email",
			body: marshalObj(t, principal.NewStaff{
				Name: "Kojo Again", Email: "KOJO@wima.cd", Role: principal.RoleTeacher, Password: pwd,
			}),
			wantCode: http.StatusConflict,
			wantData: failure("UNIQUE_VIOLATION", "a staff member with this email already exists",
				map[string]string{"email": "a staff member with this email already exists"}),
		},
		{
			name: "bad role",
			body: marshalObj(t, principal.NewStaff{
				Name: "Abena", Email: "abena@wima.cd", Role: "JANITOR", Password: pwd,
			}),
			wantCode: http.StatusBadRequest,
			wantData: failure("VALIDATION_ERROR", "invalid data",
				map[string]string{"role": "role must be one of PRINCIPAL, TEACHER"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, path, tokenA, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	// list
	req, rec = newAuthRequest(http.MethodGet, path, tokenA)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var staff []principal.Staff
	require.NoError(t, json.Unmarshal(decodeResponse(t, rec).Data, &staff))
	ids := make([]string, 0, len(staff))
	for _, s := range staff {
		assert.Equal(t, schoolA.ID, s.SchoolID)
		ids = append(ids, s.ID)
	}
	assert.Contains(t, ids, principalA.ID)
	assert.Contains(t, ids, teacherA.ID)
	assert.Contains(t, ids, kojo.ID)
	assert.NotContains(t, ids, principalB.ID)

	// deactivation takes effect at the next verification
	kojoToken := staffToken(t, kojo)
	me := func() *httptest.ResponseRecorder {
		req, rec := newAuthRequest(http.MethodGet, "/v1/staff/me", kojoToken)
		app.ServeHTTP(rec, req)
		return rec
	}
	require.Equal(t, http.StatusOK, me().Code)

	req, rec = newAuthRequest(http.MethodPost, path+"/"+kojo.ID+"/deactivate", tokenA)
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte(`{"success": true, "message": "Staff deactivated."}`)}, rec)
	checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: failure("ACCOUNT_DEACTIVATED", "account deactivated")}, me())

	req, rec = newRequest(http.MethodPost, "/v1/auth/staff/login", marshalObj(t, StaffLoginRequest{Email: kojo.Email, Password: pwd}))
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "ACCOUNT_DEACTIVATED", decodeResponse(t, rec).Code)

	req, rec = newAuthRequest(http.MethodPost, path+"/"+kojo.ID+"/activate", tokenA)
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusOK, me().Code)

	// unknown id
	req, rec = newAuthRequest(http.MethodPost, path+"/ghost/deactivate", tokenA)
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: failure("NOT_FOUND", "principal not found")}, rec)
}

func TestDirectory_students(t *testing.T) {
	tokenA := staffToken(t, principalA)
	teacherToken := staffToken(t, teacherA)
	path := fmt.Sprintf("/v1/schools/%s/students", schoolA.ID)

	req, rec := newAuthRequest(http.MethodGet, path+"?classId=6A", teacherToken)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var students []principal.Student
	require.NoError(t, json.Unmarshal(decodeResponse(t, rec).Data, &students))
	var found bool
	for _, s := range students {
		assert.Equal(t, "6A", s.ClassID)
		if s.ID == studentA.ID {
			found = true
			assert.Equal(t, "+243810000001", s.GuardianPhone)
		}
	}
	assert.True(t, found, "student %s not listed", studentA.ID)

	// teachers enrol students
	req, rec = newAuthRequest(http.MethodPost, path, teacherToken, marshalObj(t, principal.NewStudent{
		ClassID: "5B", RollNumber: "5B-07", Name: "Adwoa Sarpong", Password: pwd,
	}))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var adwoa principal.Student
	require.NoError(t, json.Unmarshal(decodeResponse(t, rec).Data, &adwoa))

	tests := []httpTest{
		{
			name:     "duplicate roll number",
			method:   http.MethodPost,
			path:     path,
			token:    teacherToken,
			body:     marshalObj(t, principal.NewStudent{ClassID: "6A", RollNumber: "6A-01", Name: "Other Yaw", Password: pwd}),
			wantCode: http.StatusConflict,
			wantData: failure("UNIQUE_VIOLATION", "a student with this roll number already exists in this school",
				map[string]string{"rollNumber": "a student with this roll number already exists in this school"}),
		},
		{
			name:     "teachers cannot deactivate",
			method:   http.MethodPost,
			path:     path + "/" + adwoa.ID + "/deactivate",
			token:    teacherToken,
			wantCode: http.StatusForbidden,
			wantData: failure("INSUFFICIENT_PERMISSIONS", "insufficient permissions"),
		},
		{
			name:     "principal deactivates",
			method:   http.MethodPost,
			path:     path + "/" + adwoa.ID + "/deactivate",
			token:    tokenA,
			wantCode: http.StatusOK,
			wantData: []byte(`{"success": true, "message": "Student deactivated."}`),
		},
		{
			name:     "deactivated student",
			method:   http.MethodGet,
			path:     "/v1/students/me",
			token:    studentToken(t, adwoa),
			wantCode: http.StatusForbidden,
			wantData: failure("ACCOUNT_DEACTIVATED", "account deactivated"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func TestDirectory_importStudents(t *testing.T) {
	tokenA := staffToken(t, principalA)
	path := fmt.Sprintf("/v1/schools/%s/students/import", schoolA.ID)
	csvFile := func(content string) *upload {
		return &upload{filename: "students.csv", contentType: "text/csv", content: []byte(content)}
	}
	rejected := func(reason string) []byte {
		return failure("UPLOAD_REJECTED", reason, map[string]string{"file": reason})
	}

	t.Run("success", func(t *testing.T) {
		content := "rollNumber,classId,name,password,guardianPhone\n" +
			"4C-01,4C,Kofi Annan," + pwd + ",+243810000002\n" +
			"4C-02,4C,Esi Mensah,short,\n" +
			"6A-01,6A,Duplicate Yaw," + pwd + ",\n"
		req, rec := newUploadRequest(t, path, tokenA, nil, csvFile(content))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		resp := decodeResponse(t, rec)
		assert.Equal(t, "1 students imported, 2 rows skipped.", resp.Message)
		var result directory.ImportResult
		require.NoError(t, json.Unmarshal(resp.Data, &result))
		require.Len(t, result.Created, 1)
		assert.Equal(t, "4C-01", result.Created[0].RollNumber)
		assert.Equal(t, schoolA.ID, result.Created[0].SchoolID)
		require.Len(t, result.Skipped, 2)
		assert.Equal(t, 2, result.Skipped[0].Row)
		assert.Contains(t, result.Skipped[0].Errors, "password")
		assert.Equal(t, 3, result.Skipped[1].Row)
		assert.Contains(t, result.Skipped[1].Errors, "rollNumber")
	})

	tests := []struct {
		name     string
		token    string
		file     *upload
		wantCode int
		wantData []byte
	}{
		{
			name:     "teacher",
			token:    staffToken(t, teacherA),
			file:     csvFile("rollNumber,classId,name,password\n"),
			wantCode: http.StatusForbidden,
			wantData: failure("INSUFFICIENT_PERMISSIONS", "insufficient permissions"),
		},
		{
			name:     "no file",
			token:    tokenA,
			wantCode: http.StatusBadRequest,
			wantData: rejected("a CSV file is required"),
		},
		{
			name:     "not a csv",
			token:    tokenA,
			file:     &upload{filename: "students.xlsx", contentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", content: []byte("PK")},
			wantCode: http.StatusBadRequest,
			wantData: rejected("only .csv files are accepted"),
		},
		{
			name:     "too large",
			token:    tokenA,
			file:     csvFile("rollNumber,classId,name,password\n" + strings.Repeat("x", 3000)),
			wantCode: http.StatusBadRequest,
			wantData: rejected("the file is larger than 2048 bytes"),
		},
		{
			name:     "missing column",
			token:    tokenA,
			file:     csvFile("rollNumber,classId,name\n4C-09,4C,Ama\n"),
			wantCode: http.StatusBadRequest,
			wantData: rejected(`missing column "password"`),
		},
		{
			name:     "text/csv without extension",
			token:    tokenA,
			file:     &upload{filename: "export", contentType: "text/csv; charset=utf-8", content: []byte("rollNumber,classId,name,password\n")},
			wantCode: http.StatusBadRequest,
			wantData: rejected("the file has no students"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newUploadRequest(t, path, tt.token, nil, tt.file)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, httpTest{wantCode: tt.wantCode, wantData: tt.wantData}, rec)
		})
	}
}

func TestBodyLimit(t *testing.T) {
	body := bytes.Repeat([]byte("a"), 70*1024)
	req, rec := newRequest(http.MethodPost, "/v1/auth/staff/login", body)
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadRequest,
		wantData: failure("UPLOAD_REJECTED", "request body too large"),
	}, rec)
}

func TestPasswordReset(t *testing.T) {
	mailSvc.Reset()
	resetMsg := "If the email address supplied is associated with an active account on this system, " +
		"an email will arrive in your inbox shortly with instructions to reset your password."

	// unknown emails get the same answer
	for _, email := range []string{"nobody@wima.cd", teacherA.Email} {
		req, rec := newRequest(http.MethodPost, "/v1/auth/password-reset", marshalObj(t, PasswordResetRequest{Email: email}))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusOK,
			wantData: []byte(fmt.Sprintf(`{"success": true, "message": %q}`, resetMsg)),
		}, rec)
	}

	sent := mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, teacherA.Email, sent[0].To[0].Address)
	code := codeRegex.FindString(sent[0].TextContent)
	require.NotEmpty(t, code)

	newPwd := "Nw8$tRq4!pz"
	confirm := func(code string) *httptest.ResponseRecorder {
		req, rec := newRequest(http.MethodPost, "/v1/auth/password-reset-confirm", marshalObj(t, principal.ResetPassword{
			Email: teacherA.Email, Code: code, Password: newPwd, PasswordConfirm: newPwd,
		}))
		app.ServeHTTP(rec, req)
		return rec
	}

	wrong := "0" + code[1:]
	if wrong == code {
		wrong = "1" + code[1:]
	}
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadRequest,
		wantData: failure("VALIDATION_ERROR", "invalid data", map[string]string{"code": "invalid or expired code"}),
	}, confirm(wrong))

	rec := confirm(code)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, http.StatusBadRequest, confirm(code).Code) // single use

	req, rec := newRequest(http.MethodPost, "/v1/auth/staff/login", marshalObj(t, StaffLoginRequest{Email: teacherA.Email, Password: newPwd}))
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetrics(t *testing.T) {
	req, rec := newRequest(http.MethodGet, "/v1/staff/me")
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req, rec = newRequest(http.MethodGet, "/metrics")
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `academia_http_errors_total{code="MISSING_TOKEN"}`)
	assert.Contains(t, body, `academia_http_request_duration_seconds_count{method="GET",route="/v1/staff/me",status="401"}`)
}
