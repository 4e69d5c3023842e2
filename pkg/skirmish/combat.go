package skirmish

// attack applies one hit from attacker to defender and reports whether the
// defender died. Health never drops below zero. A dead defender leaves the
// board and its faction's live count immediately.
func (b *Battle) attack(attacker, defender UnitID) bool {
	a := b.reg.unit(attacker)
	d := b.reg.unit(defender)
	if !a.Alive() || !d.Alive() {
		panic(invariantf("attack %d -> %d involves a dead unit", attacker, defender))
	}
	d.Health = max(d.Health-a.Attack, 0)
	if d.Health > 0 {
		return false
	}
	b.reg.remove(defender)
	return true
}
