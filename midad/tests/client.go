package tests

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"

	"midad_platform/midad/services"

	"github.com/go-chi/chi/v5"
)

type httpTestRequest struct {
	api http.Handler

	method   string
	endpoint string
	headers  map[string]string
	json     interface{}
	body     io.Reader
	login    *loginInfo
}

func newHttpTestRequest(api http.Handler, method, endpoint string) *httpTestRequest {
	return &httpTestRequest{
		api:      api,
		method:   method,
		endpoint: endpoint,
		headers:  nil,
		json:     nil,
		body:     nil,
	}
}

func (r *httpTestRequest) Header(key, value string) *httpTestRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpTestRequest) Login(email, password string) *httpTestRequest {
	r.login = &loginInfo{Email: email, Password: password}
	return r
}

func (r *httpTestRequest) Auth(token string) *httpTestRequest {
	return r.Header("Authorization", fmt.Sprintf("Bearer %v", token))
}

func (r *httpTestRequest) Json(data interface{}) *httpTestRequest {
	r.json = data
	return r
}

// response body will be parsed into result, passing nil indicates that no result is returned.
func (r *httpTestRequest) Do(result interface{}) error {
	if r.json != nil {
		body := new(bytes.Buffer)
		err := json.NewEncoder(body).Encode(r.json)
		if err != nil {
			return fmt.Errorf("error encoding json body for endpoint %v: %w", r.endpoint, err)
		}
		r.body = body
	}

	req := httptest.NewRequest(r.method, r.endpoint, r.body)
	if r.headers != nil {
		for k, v := range r.headers {
			req.Header.Add(k, v)
		}
	}

	if r.login != nil {
		req.SetBasicAuth(r.login.Email, r.login.Password)
	}

	w := httptest.NewRecorder()

	r.api.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		if res.StatusCode == http.StatusUnauthorized {
			return ErrUnauthorized
		}
		if res.StatusCode == http.StatusForbidden {
			return ErrForbidden
		}
		if res.StatusCode == http.StatusNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("%v request to endpoint %v returned status %d, content '%v'", r.method, r.endpoint, res.StatusCode, w.Body.String())
	}

	if result != nil {
		err := json.NewDecoder(res.Body).Decode(result)
		if err != nil {
			return fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, err)
		}
	}

	return nil
}

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

type client struct {
	api       chi.Router
	authToken string
	userId    string
}

func (c *client) Get(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "GET", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Post(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "POST", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Put(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "PUT", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Delete(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "DELETE", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

type loginInfo struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *client) signup(name, email, password, role string) (loginInfo, error) {
	body := map[string]string{
		"name": name, "email": email, "password": password, "role": role,
	}

	err := c.Post("/user/signup").Json(body).Do(nil)
	if err != nil {
		return loginInfo{}, err
	}

	return loginInfo{Email: email, Password: password}, nil
}

func (c *client) login(login loginInfo) error {
	var res map[string]string
	err := c.Get("/user/login").Login(login.Email, login.Password).Do(&res)
	if err != nil {
		return err
	}

	c.authToken = res["access_token"]
	c.userId = res["user_id"]

	return nil
}

func (c *client) addUser(name, email, password, role string) (string, error) {
	body := map[string]string{
		"name": name, "email": email, "password": password, "role": role,
	}

	var res map[string]string
	err := c.Post("/user/create").Json(body).Do(&res)
	return res["user_id"], err
}

func (c *client) deleteUser(userId string) error {
	return c.Delete(fmt.Sprintf("/user/%v", userId)).Do(nil)
}

func (c *client) promoteAdmin(userId string) error {
	return c.Post(fmt.Sprintf("/user/%v/admin", userId)).Do(nil)
}

func (c *client) demoteAdmin(userId string) error {
	return c.Delete(fmt.Sprintf("/user/%v/admin", userId)).Do(nil)
}

func (c *client) listUsers() ([]services.UserInfo, error) {
	var res []services.UserInfo
	err := c.Get("/user/list").Do(&res)
	return res, err
}

func (c *client) userInfo() (services.UserInfoResponse, error) {
	var res services.UserInfoResponse
	err := c.Get("/user/info").Do(&res)
	return res, err
}

func (c *client) initializeWorkspace() error {
	return c.Post("/workspace/initialize").Do(nil)
}

func (c *client) getWorkspace(category string) (services.WorkspaceRecord, error) {
	var res services.WorkspaceRecord
	err := c.Get(fmt.Sprintf("/workspace/%v", category)).Do(&res)
	return res, err
}

func (c *client) getWorkspaceOf(userId, category string) (services.WorkspaceRecord, error) {
	var res services.WorkspaceRecord
	err := c.Get(fmt.Sprintf("/workspace/%v/%v", userId, category)).Do(&res)
	return res, err
}

func (c *client) putWorkspace(category string, payload interface{}) error {
	return c.Put(fmt.Sprintf("/workspace/%v", category)).Json(payload).Do(nil)
}

func (c *client) deleteWorkspace(category string) error {
	return c.Delete(fmt.Sprintf("/workspace/%v", category)).Do(nil)
}

func (c *client) saveResearch(title, content, status string) (services.ResearchInfo, error) {
	body := map[string]string{"title": title, "content": content, "status": status}
	var res services.ResearchInfo
	err := c.Post("/research").Json(body).Do(&res)
	return res, err
}

func (c *client) getResearch() (services.ResearchInfo, error) {
	var res services.ResearchInfo
	err := c.Get("/research").Do(&res)
	return res, err
}

func (c *client) getResearchOf(userId string) (services.ResearchInfo, error) {
	var res services.ResearchInfo
	err := c.Get(fmt.Sprintf("/research/%v", userId)).Do(&res)
	return res, err
}

func (c *client) progress() (services.ProgressInfo, error) {
	var res services.ProgressInfo
	err := c.Get("/research/progress").Do(&res)
	return res, err
}

func (c *client) publishResearch(summary, supervisor string, year int) error {
	body := map[string]interface{}{
		"summary": summary, "supervisor_name": supervisor, "graduation_year": year,
	}
	return c.Post("/research/publish").Json(body).Do(nil)
}

func (c *client) gallery(query string) ([]services.GalleryEntry, error) {
	var res []services.GalleryEntry
	err := c.Get("/research/gallery" + query).Do(&res)
	return res, err
}

func (c *client) featureResearch(researchId string) error {
	return c.Post(fmt.Sprintf("/research/%v/feature", researchId)).Do(nil)
}

func (c *client) createSource(title, sourceType string) (services.SourceInfo, error) {
	body := map[string]string{"title": title, "type": sourceType}
	var res services.SourceInfo
	err := c.Post("/sources").Json(body).Do(&res)
	return res, err
}

func (c *client) listSources() ([]services.SourceInfo, error) {
	var res []services.SourceInfo
	err := c.Get("/sources").Do(&res)
	return res, err
}

func (c *client) listSourcesOf(userId string) ([]services.SourceInfo, error) {
	var res []services.SourceInfo
	err := c.Get(fmt.Sprintf("/sources/%v/list", userId)).Do(&res)
	return res, err
}

func (c *client) deleteSource(sourceId string) error {
	return c.Delete(fmt.Sprintf("/sources/%v", sourceId)).Do(nil)
}

func (c *client) createTask(body map[string]interface{}) (services.TaskInfo, error) {
	var res services.TaskInfo
	err := c.Post("/schedule").Json(body).Do(&res)
	return res, err
}

func (c *client) listTasks() ([]services.TaskInfo, error) {
	var res []services.TaskInfo
	err := c.Get("/schedule").Do(&res)
	return res, err
}

func (c *client) listNotifications(unreadOnly bool) ([]services.NotificationInfo, error) {
	endpoint := "/notifications"
	if unreadOnly {
		endpoint += "?unread=true"
	}
	var res []services.NotificationInfo
	err := c.Get(endpoint).Do(&res)
	return res, err
}

func (c *client) markNotificationRead(notificationId string) error {
	return c.Post(fmt.Sprintf("/notifications/%v/read", notificationId)).Do(nil)
}

func (c *client) markAllNotificationsRead() error {
	return c.Post("/notifications/read-all").Do(nil)
}

func (c *client) assignSupervisor(studentId, supervisorId string) (services.AssignmentInfo, error) {
	body := map[string]string{"student_id": studentId, "supervisor_id": supervisorId}
	var res services.AssignmentInfo
	err := c.Post("/assignments").Json(body).Do(&res)
	return res, err
}

func (c *client) listAssignments() ([]services.AssignmentInfo, error) {
	var res []services.AssignmentInfo
	err := c.Get("/assignments").Do(&res)
	return res, err
}

func (c *client) removeAssignment(assignmentId string) error {
	return c.Delete(fmt.Sprintf("/assignments/%v", assignmentId)).Do(nil)
}

func (c *client) submitChapter(chapter int, title, content string) (services.SubmissionInfo, error) {
	body := map[string]interface{}{"chapter_number": chapter, "title": title, "content": content}
	var res services.SubmissionInfo
	err := c.Post("/review/submissions").Json(body).Do(&res)
	return res, err
}

func (c *client) listSubmissions(status string) ([]services.SubmissionInfo, error) {
	endpoint := "/review/submissions"
	if status != "" {
		endpoint += "?status=" + status
	}
	var res []services.SubmissionInfo
	err := c.Get(endpoint).Do(&res)
	return res, err
}

func (c *client) getSubmission(submissionId string) (services.SubmissionInfo, error) {
	var res services.SubmissionInfo
	err := c.Get(fmt.Sprintf("/review/submissions/%v", submissionId)).Do(&res)
	return res, err
}

func (c *client) commentOnSubmission(submissionId, comment, kind string) (services.CommentInfo, error) {
	body := map[string]string{"comment": comment, "kind": kind}
	var res services.CommentInfo
	err := c.Post(fmt.Sprintf("/review/submissions/%v/comments", submissionId)).Json(body).Do(&res)
	return res, err
}

func (c *client) reviewSubmission(submissionId, status string) error {
	body := map[string]string{"status": status}
	return c.Put(fmt.Sprintf("/review/submissions/%v/review", submissionId)).Json(body).Do(nil)
}

func (c *client) studentProgress() ([]services.StudentProgress, error) {
	var res []services.StudentProgress
	err := c.Get("/review/students").Do(&res)
	return res, err
}

func (c *client) generate(action, text string) (string, error) {
	body := map[string]string{"action": action, "text": text}
	var res map[string]string
	err := c.Post("/assistant/generate").Json(body).Do(&res)
	return res["result"], err
}

func (c *client) assistantHistory() ([]services.ConversationInfo, error) {
	var res []services.ConversationInfo
	err := c.Get("/assistant/history").Do(&res)
	return res, err
}
