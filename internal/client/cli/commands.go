package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/narrate/internal/client/auth"
	"github.com/dmitrijs2005/narrate/internal/client/guard"
	"github.com/dmitrijs2005/narrate/internal/client/models"
	"github.com/dmitrijs2005/narrate/internal/common"
)

// Test seams for prompts.
var (
	getSimpleText = GetSimpleText
	getPassword   = GetPassword
	getMultiline  = GetMultiline
)

// usernameWait bounds how long sign-up waits for the availability verdict.
const usernameWait = 5 * time.Second

var errNotSignedIn = errors.New("not signed in")

func (a *App) prompt(text string) (string, error) {
	return getSimpleText(a.reader, text, a.screen.out)
}

func (a *App) password(text string) (string, error) {
	pw, err := getPassword(text, a.screen.out)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(pw)
	return string(pw), nil
}

// showValidation prints per-field form errors; other errors are left to the
// flows, which report them through the screen.
func (a *App) showValidation(err error) {
	var verrs auth.ValidationErrors
	if !errors.As(err, &verrs) {
		return
	}
	fields := make([]string, 0, len(verrs))
	for f := range verrs {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		a.screen.Error(verrs[f])
	}
}

// SignIn opens the sign-in route and submits the credentials the user types.
func (a *App) SignIn(ctx context.Context) error {
	a.router.Navigate(guard.RouteSignIn)
	if a.screen.Route() != guard.RouteSignIn {
		a.screen.Println("Already signed in.")
		return nil
	}

	last := a.lastEmail(ctx)
	text := "Email"
	if last != "" {
		text = fmt.Sprintf("Email [%s]", last)
	}
	email, err := a.prompt(text)
	if err != nil {
		return err
	}
	if email == "" {
		email = last
	}
	pw, err := a.password("Password")
	if err != nil {
		return err
	}

	if err := a.signIn.Submit(ctx, email, pw); err != nil {
		a.showValidation(err)
		return err
	}
	a.rememberEmail(ctx, email)
	return nil
}

// SignUp registers an account and then asks for the e-mailed code. A sign-up
// left at the verification step resumes there.
func (a *App) SignUp(ctx context.Context) error {
	a.router.Navigate(guard.RouteSignUp)
	if a.screen.Route() != guard.RouteSignUp {
		a.screen.Println("Already signed in.")
		return nil
	}

	if a.signUp.Step() == auth.StepRegistration {
		if err := a.register(ctx); err != nil {
			return err
		}
	}
	return a.verify(ctx)
}

func (a *App) register(ctx context.Context) error {
	var d auth.SignupDraft
	var err error

	if d.Email, err = a.prompt("Email"); err != nil {
		return err
	}
	for {
		if d.Username, err = a.prompt("Username"); err != nil {
			return err
		}
		if a.checkUsername(ctx, d.Username) {
			break
		}
	}
	if d.FirstName, err = a.prompt("First name"); err != nil {
		return err
	}
	if d.LastName, err = a.prompt("Last name"); err != nil {
		return err
	}
	if d.Password, err = a.password("Password"); err != nil {
		return err
	}
	if d.ConfirmPassword, err = a.password("Confirm password"); err != nil {
		return err
	}

	if err := a.signUp.Register(ctx, d); err != nil {
		a.showValidation(err)
		if errors.Is(err, auth.ErrUsernameTaken) {
			a.screen.Error(err.Error())
		}
		return err
	}
	return nil
}

// checkUsername feeds the draft to the availability checker and waits for a
// verdict. It returns false only when the name is known to be taken.
func (a *App) checkUsername(ctx context.Context, username string) bool {
	a.usernames.Update(username)

	deadline := time.Now().Add(a.config.UsernameDebounce + usernameWait)
	for a.usernames.Current().State == auth.AvailabilityChecking && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return true
		case <-time.After(50 * time.Millisecond):
		}
	}

	switch v := a.usernames.Current(); v.State {
	case auth.AvailabilityTaken:
		a.screen.Error(fmt.Sprintf("username %q is already taken", v.Username))
		return false
	case auth.AvailabilityFree:
		a.screen.Println("Username is available.")
	}
	return true
}

// verify runs the code entry loop. A line of digits is typed into the code
// row, "<" erases the last digit, "r" resends the code and "q" abandons the
// sign-up.
func (a *App) verify(ctx context.Context) error {
	for a.signUp.Step() == auth.StepOTPVerification {
		a.screen.Println("Code:", formatOTP(a.signUp.OTP()))
		line, err := a.prompt("Enter the code (< erase, r resend, q quit)")
		if err != nil {
			return err
		}

		switch line {
		case "q":
			a.signUp.Abandon()
			a.screen.Println("Sign-up abandoned.")
			return nil
		case "r":
			_ = a.signUp.ResendOTP(ctx)
			continue
		case "<":
			if i := lastFilled(a.signUp.OTP()); i >= 0 {
				a.signUp.BackspaceOTP(i)
			}
			continue
		}

		a.signUp.TypeOTP(line)
		if a.signUp.CanVerify() {
			if err := a.signUp.Verify(ctx); err == nil {
				return nil
			}
		}
	}
	return nil
}

func formatOTP(b auth.OTPBuffer) string {
	var sb strings.Builder
	for _, s := range b.Slots() {
		if s == "" {
			s = "_"
		}
		sb.WriteString("[" + s + "]")
	}
	return sb.String()
}

func lastFilled(b auth.OTPBuffer) int {
	slots := b.Slots()
	for i := len(slots) - 1; i >= 0; i-- {
		if slots[i] != "" {
			return i
		}
	}
	return -1
}

// SignOut asks for confirmation and signs out.
func (a *App) SignOut(ctx context.Context) error {
	if !a.isLoggedIn() {
		a.screen.Println("Not signed in.")
		return errNotSignedIn
	}

	a.signOut.Request()
	ok, err := Confirm(a.reader, "Sign out?", a.screen.out)
	if err != nil || !ok {
		a.signOut.Cancel()
		return err
	}
	return a.signOut.Confirm(ctx)
}

// WhoAmI prints the session.
func (a *App) WhoAmI(ctx context.Context) error {
	st := a.session.Get(ctx)
	if !st.Authenticated() {
		a.screen.Println("Not signed in.")
		return nil
	}
	printUser(a, st.User)
	return nil
}

// Refresh forces a session check.
func (a *App) Refresh(ctx context.Context) error {
	st := a.session.Refresh(ctx)
	if st.Err != nil {
		a.screen.Println("Session:", st.Status, st.Err)
		return nil
	}
	a.screen.Println("Session:", st.Status)
	return nil
}

// Goto opens route through the guard.
func (a *App) Goto(ctx context.Context, route string) error {
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	a.router.Navigate(route)
	return nil
}

// Profile edits username, email and bio. Blank answers keep the current
// value; a bio of "-" clears it.
func (a *App) Profile(ctx context.Context) error {
	a.router.Navigate(guard.RouteProfile)
	st := a.session.Snapshot()
	if !st.Authenticated() {
		return errNotSignedIn
	}
	u := st.User

	var data models.UpdateUserData
	username, err := a.prompt(fmt.Sprintf("Username [%s]", u.Username))
	if err != nil {
		return err
	}
	if username != "" && username != u.Username {
		data.Username = &username
	}
	email, err := a.prompt(fmt.Sprintf("Email [%s]", u.Email))
	if err != nil {
		return err
	}
	if email != "" && email != u.Email {
		data.Email = &email
	}
	bio, err := getMultiline(a.reader, "Bio (blank keeps it, '-' clears it)", a.screen.out)
	if err != nil {
		return err
	}
	switch bio {
	case "":
	case "-":
		empty := ""
		data.Bio = &empty
	default:
		data.Bio = &bio
	}

	updated, err := a.profile.UpdateInfo(ctx, data)
	if err != nil {
		a.screen.Error(err.Error())
		return err
	}
	a.screen.Success("profile updated")
	printUser(a, updated)
	return nil
}

// Avatar uploads the image at path as the profile picture.
func (a *App) Avatar(ctx context.Context, path string) error {
	if !a.isLoggedIn() {
		a.screen.Println("Not signed in.")
		return errNotSignedIn
	}
	url, err := a.profile.UploadImage(ctx, path)
	if err != nil {
		a.screen.Error(err.Error())
		return err
	}
	a.screen.Success("profile image updated: " + url)
	return nil
}

// Search lists users matching username, one page at a time.
func (a *App) Search(ctx context.Context, username string) error {
	var cursor *models.Cursor
	for {
		res, err := a.profile.Search(ctx, username, 0, cursor)
		if err != nil {
			a.screen.Error(err.Error())
			return err
		}
		if len(res.Users) == 0 && cursor == nil {
			a.screen.Println("No users found.")
		}
		for _, u := range res.Users {
			a.screen.Println(fmt.Sprintf("  @%-20s %s", u.Username, u.DisplayName()))
		}
		if res.NextCursor == nil {
			return nil
		}
		more, err := Confirm(a.reader, "More?", a.screen.out)
		if err != nil || !more {
			return err
		}
		cursor = res.NextCursor
	}
}

func printUser(a *App, u *models.User) {
	a.screen.Println(fmt.Sprintf("@%s (%s) <%s>", u.Username, u.DisplayName(), u.Email))
	if u.Image != nil {
		a.screen.Println("Image:", *u.Image)
	}
	if u.Bio != nil && *u.Bio != "" {
		a.screen.Println("Bio:", *u.Bio)
	}
}
