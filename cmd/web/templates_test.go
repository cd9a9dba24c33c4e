package main

import (
	"github.com/myrjola/vera/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"path"
	"testing"
)

func Test_application_pageTemplate(t *testing.T) {
	app := &application{} //nolint:exhaustruct // templates need no dependencies

	for _, page := range []string{"investigations", "report"} {
		t.Run(page, func(t *testing.T) {
			tmpl, err := app.pageTemplate(page)
			require.NoError(t, err)
			for _, name := range []string{"base", "page", "title", "lang"} {
				assert.NotNil(t, tmpl.Lookup(name), "template %q", name)
			}
		})
	}

	t.Run("bad page name", func(t *testing.T) {
		_, err := app.pageTemplate("[")
		require.Error(t, err)
		require.ErrorIs(t, err, path.ErrBadPattern)
		var annotated *errors.AnnotatedError
		require.ErrorAs(t, err, &annotated)
		assert.Contains(t, err.Error(), "glob page template files")
		assert.Contains(t, errors.SlogError(err).Value.String(), "page=[")
	})
}
