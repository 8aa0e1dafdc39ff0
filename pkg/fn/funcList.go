package fn

// FuncList collects cleanup functions.
type FuncList []func()

// ToFunction returns a function that executes all added functions in
// reverse order of addition.
func (c FuncList) ToFunction() func() {
	return func() {
		for i := range c {
			c[len(c)-1-i]()
		}
	}
}

// Execute all added functions
func (c FuncList) Execute() {
	c.ToFunction()()
}
