package bubbletea

import tea "github.com/charmbracelet/bubbletea"

// ClearToast exposes the internal toast-expiry message for tests.
var ClearToast tea.Msg = clearToastMsg{}
