package tenant

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTenantTemplate(t *testing.T) {
	tn := &Tenant{ID: 7}
	for _, k := range AllTemplateKeys() {
		assert.NotEmpty(t, tn.Template(k), k)
	}

	require.NoError(t, tn.UpdateTemplates(map[TemplateKey]string{TemplateGreeting: "Hello {customer_name}"}, nil))
	assert.Equal(t, "Hello {customer_name}", tn.Template(TemplateGreeting))
	assert.Equal(t, DefaultTemplate(TemplateShipping), tn.Template(TemplateShipping))

	require.NoError(t, tn.UpdateTemplates(map[TemplateKey]string{TemplateGreeting: "  "}, nil))
	assert.Equal(t, DefaultTemplate(TemplateGreeting), tn.Template(TemplateGreeting))

	assert.Error(t, tn.UpdateTemplates(map[TemplateKey]string{"bogus": "x"}, nil))
}

func TestConfirmationDelay(t *testing.T) {
	tn := &Tenant{}
	assert.Equal(t, 5*time.Minute, tn.ConfirmationDelay())

	d := 15
	require.NoError(t, tn.UpdateTemplates(nil, &d))
	assert.Equal(t, 15*time.Minute, tn.ConfirmationDelay())

	bad := -1
	assert.Error(t, tn.UpdateTemplates(nil, &bad))
}
