package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/railscope/internal/config"
	"github.com/phobologic/railscope/internal/model"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const routesTable = `   Prefix Verb   URI Pattern          Controller#Action
     page GET    /pages/:id(.:format) pages#show
          DELETE /pages/:id(.:format) pages#destroy
    users GET    /users(.:format)     users#index
`

func sampleApp(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "app/controllers/application_controller.rb", `class ApplicationController < ActionController::API
  include HttpResponses
  include ErrorHandling
  before_action :auth_check

  def auth_check
    process_jwt request.headers['Authorization']
  end

  def process_jwt(header)
    params[:api_version]
  end
end
`)
	writeFile(t, root, "app/controllers/concerns/error_handling.rb", `module ErrorHandling
  extend ActiveSupport::Concern

  included do
    around_action :catch_exceptions
  end

  def catch_exceptions
    yield
  rescue StandardError
    params[:trace]
  end
end
`)
	writeFile(t, root, "app/helpers/http_responses.rb", `module HttpResponses
  def respond_ok(body)
    render json: body
  end
end
`)
	writeFile(t, root, "app/controllers/pages_controller.rb", `class PagesController < ApplicationController
  def show
    @page = Page.find(params[:id])
    respond_ok page_params
  end

  private

  def page_params
    params.require(:page).permit(:title, tags: [])
  end
end
`)
	writeFile(t, root, "app/controllers/broken_controller.rb", "class BrokenController\nend\n")
	writeFile(t, root, "app/views/pages/show.json.jbuilder", "json.(@page, :id, :title)\nif @page.draft?\n  json.draft true\nend\n")
	writeFile(t, root, "app/views/pages/_page.json.jbuilder", "json.ignored 1\n")
	writeFile(t, root, "spec/controllers/pages_controller_spec.rb", "describe PagesController do\nend\n")
	writeFile(t, root, "routes.txt", routesTable)
	return root
}

func TestRun(t *testing.T) {
	t.Parallel()
	root := sampleApp(t)

	res, err := Run(context.Background(), root, config.Default(), nil)
	require.NoError(t, err)

	am := res.Map
	assert.True(t, res.Routed)
	assert.Equal(t, 5, am.FilesScanned)
	assert.Equal(t, 1, am.FilesFailed)
	assert.Equal(t, 4, res.Registry.Len())
	assert.Equal(t, 1, res.Views.Len())

	require.Len(t, am.Failures, 1)
	assert.Equal(t, "app/controllers/broken_controller.rb", am.Failures[0].File)
	assert.Equal(t, 1, am.Failures[0].Line)
	assert.Contains(t, am.Failures[0].Message, "class has no superclass")

	assert.Equal(t, []model.Dependency{
		{Source: "ApplicationController", Target: "ErrorHandling", Kind: "includes"},
		{Source: "ApplicationController", Target: "HttpResponses", Kind: "includes"},
		{Source: "PagesController", Target: "ApplicationController", Kind: "inherits"},
	}, am.Dependencies)

	require.Len(t, am.Endpoints, 3)
	show := am.Endpoints[0]
	assert.Equal(t, "GET /pages/:id", show.Request)
	assert.Equal(t, "PagesController", show.Controller)
	assert.Equal(t, "show", show.Action)
	assert.Empty(t, show.Error)
	assert.Equal(t, []string{"api_version", "id", "page", "tags[]", "title", "trace"}, show.Params)
	assert.Equal(t, []string{"Authorization"}, show.Headers)
	assert.Equal(t, []string{"@page"}, show.InstanceVariables)
	assert.Equal(t, []string{"?draft", "id", "title"}, show.Response)

	destroy := am.Endpoints[1]
	assert.Equal(t, "action destroy not found in controller PagesController for request DELETE /pages/:id", destroy.Error)
	assert.Empty(t, destroy.Params)

	users := am.Endpoints[2]
	assert.Equal(t, "controller UsersController not found for request GET /users", users.Error)
}

func TestRunWithoutRoutes(t *testing.T) {
	t.Parallel()
	root := sampleApp(t)
	require.NoError(t, os.Remove(filepath.Join(root, "routes.txt")))

	res, err := Run(context.Background(), root, config.Default(), nil)
	require.NoError(t, err)
	assert.False(t, res.Routed)

	var ids []string
	for _, ep := range res.Map.Endpoints {
		ids = append(ids, ep.Request)
		assert.Empty(t, ep.Error, ep.Request)
	}
	assert.Equal(t, []string{"application#process_jwt", "pages#show", "pages#page_params"}, ids)
}

func TestRunMissingInclude(t *testing.T) {
	t.Parallel()
	root := sampleApp(t)
	writeFile(t, root, "app/controllers/pages_controller.rb", `class PagesController < ApplicationController
  include Paging

  def show
    params[:id]
  end
end
`)

	res, err := Run(context.Background(), root, config.Default(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"PagesController: included module Paging not found"}, res.Map.Warnings)
}

func TestRunCyclicAncestry(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "app/controllers/a_controller.rb", "class AController < BController\n  def show\n  end\nend\n")
	writeFile(t, root, "app/controllers/b_controller.rb", "class BController < AController\nend\n")

	res, err := Run(context.Background(), root, config.Default(), nil)
	require.NoError(t, err)

	require.Len(t, res.Map.Failures, 1)
	assert.Equal(t, "cyclic ancestry: AController < BController < AController", res.Map.Failures[0].Message)
	for _, ep := range res.Map.Endpoints {
		assert.Contains(t, ep.Error, "cyclic ancestry")
	}
}

func TestRunNoSources(t *testing.T) {
	t.Parallel()

	_, err := Run(context.Background(), t.TempDir(), config.Default(), nil)
	assert.ErrorIs(t, err, ErrNoSources)
}

func TestRunMaxFileSize(t *testing.T) {
	t.Parallel()
	root := sampleApp(t)

	cfg := config.Default()
	cfg.Sources.MaxFileSize = 10
	_, err := Run(context.Background(), root, cfg, nil)
	assert.ErrorIs(t, err, ErrNoSources)
}

func TestRunSingleWorkerMatchesParallel(t *testing.T) {
	t.Parallel()
	root := sampleApp(t)

	serial := config.Default()
	serial.Workers = 1
	a, err := Run(context.Background(), root, serial, nil)
	require.NoError(t, err)

	parallel := config.Default()
	parallel.Workers = 8
	b, err := Run(context.Background(), root, parallel, nil)
	require.NoError(t, err)

	assert.Equal(t, a.Map, b.Map)
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()
	root := sampleApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, root, config.Default(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHeaderNames(t *testing.T) {
	t.Parallel()

	got := headerNames([]model.Header{{Key: "Authorization"}, {Key: "Retry-After", Value: "20"}})
	assert.Equal(t, []string{"Authorization", "Retry-After=20"}, got)
}
