package session

import (
	"embed"
	"strconv"
	"strings"

	"github.com/fortressbank/bankd/internal/bank"
)

//go:embed menu/*.txt
var menuFS embed.FS

var (
	loginMenu    = mustMenu("menu/login.txt")
	adminMenu    = mustMenu("menu/admin.txt")
	customerMenu = mustMenu("menu/customer.txt")
)

func mustMenu(name string) string {
	content, err := menuFS.ReadFile(name)
	if err != nil {
		panic(err)
	}
	return string(content)
}

func renderCustomerMenu(accountNum, balance int64) string {
	menu := strings.ReplaceAll(customerMenu, "{account_num}", strconv.FormatInt(accountNum, 10))
	return strings.ReplaceAll(menu, "{balance}", bank.FormatAmount(balance))
}
