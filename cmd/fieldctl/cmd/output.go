package cmd

import (
	"errors"
	"strings"

	"github.com/pestline/go-auth"
	"github.com/pterm/pterm"
)

type stateView struct {
	Phase       string   `json:"phase"`
	Loading     bool     `json:"loading"`
	Email       string   `json:"email,omitempty"`
	Name        string   `json:"name,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Approved    bool     `json:"approved"`
	LoginMethod string   `json:"login_method,omitempty"`
	Error       string   `json:"error,omitempty"`
	ErrorKind   string   `json:"error_kind,omitempty"`
	Redirect    string   `json:"redirect,omitempty"`
	Path        string   `json:"path,omitempty"`
	Allowed     *bool    `json:"allowed,omitempty"`
	RedirectTo  string   `json:"redirect_to,omitempty"`
}

func viewOf(state auth.State) stateView {
	v := stateView{
		Phase:     string(state.Phase),
		Loading:   state.Loading,
		Error:     state.Error,
		ErrorKind: string(auth.KindOf(state.Err)),
		Redirect:  state.Redirect,
	}
	if u := state.User; u != nil {
		v.Email = u.Email
		v.Name = u.Name
		v.Roles = u.Roles
		v.Approved = u.IsApproved
		v.LoginMethod = u.LoginMethod
	}
	return v
}

func printState(state auth.State) {
	if state.User == nil {
		switch {
		case state.Error != "":
			pterm.Error.Println(state.Error)
		case auth.IsKind(state.Err, auth.KindNotFound):
			pterm.Warning.Println("Signed in, but no profile exists for this account")
		default:
			pterm.Info.Println("Not signed in")
		}
		return
	}

	u := state.User
	approved := "yes"
	if !u.IsApproved {
		approved = "no (pending approval)"
	}
	table := pterm.TableData{
		{"EMAIL", "NAME", "ROLES", "APPROVED", "METHOD"},
		{u.Email, u.Name, strings.Join(u.Roles, ", "), approved, u.LoginMethod},
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(table).Render()
}

func failureFrom(state auth.State) error {
	if state.User != nil {
		return nil
	}
	if state.Error != "" {
		return errors.New(state.Error)
	}
	if auth.IsKind(state.Err, auth.KindNotFound) {
		return errors.New("no profile exists for this account")
	}
	return errors.New("not signed in")
}
